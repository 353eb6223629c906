package kcommon

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
)

const defaultCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

type safeRand struct {
	mu         sync.Mutex
	seededRand *rand.Rand
}

var sharedRand safeRand

func GetRandom(ctx context.Context, op func(*rand.Rand)) {
	sharedRand.mu.Lock()
	defer sharedRand.mu.Unlock()
	if sharedRand.seededRand == nil {
		seed := time.Now().UnixNano()
		buf := make([]byte, 8)
		if _, err := crypto_rand.Read(buf); err != nil {
			klogging.Warning(ctx).WithError(err).Log("CryptoRandSeedFailed", "falling back to time seed")
		} else {
			seed = int64(binary.BigEndian.Uint64(buf))
		}
		sharedRand.seededRand = rand.New(rand.NewSource(seed))
	}
	op(sharedRand.seededRand)
}

func RandomString(ctx context.Context, length int) string {
	b := make([]byte, length)
	GetRandom(ctx, func(r *rand.Rand) {
		for i := range b {
			b[i] = defaultCharset[r.Intn(len(defaultCharset))]
		}
	})
	return string(b)
}

// RandomInt returns a pseudo-random number in [0,max), 0 when max <= 0.
func RandomInt(ctx context.Context, max int) (ret int) {
	if max <= 0 {
		return 0
	}
	GetRandom(ctx, func(r *rand.Rand) {
		ret = r.Intn(max)
	})
	return
}

// RandomIntBetween returns a pseudo-random number in [min,max).
func RandomIntBetween(ctx context.Context, min, max int) int {
	if max <= min {
		return min
	}
	return min + RandomInt(ctx, max-min)
}

func NewTraceId(ctx context.Context, prefix string, size int) string {
	return prefix + RandomString(ctx, size)
}
