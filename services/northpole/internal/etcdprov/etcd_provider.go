package etcdprov

import (
	"context"
	"fmt"
	"sync"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
)

// ErrKeyNotFound is panicked by a strict Delete on a missing key.
var ErrKeyNotFound = kerror.Create("KeyNotFound", "key not found").
	WithErrorCode(kerror.EC_NOT_FOUND)

type EtcdRevision int64

type EtcdKvItem struct {
	Key            string
	Value          string
	ModRevision    EtcdRevision // 0 means the key does not exist
	CreateRevision EtcdRevision
}

func (item EtcdKvItem) Exists() bool {
	return item.ModRevision != 0
}

// TxnGuard holds when Key is currently at ModRevision. ModRevision 0 means Key must be absent.
type TxnGuard struct {
	Key         string
	ModRevision EtcdRevision
}

// EtcdTxn is a compare-and-swap: if every guard holds, all puts and deletes apply at one revision.
type EtcdTxn struct {
	Guards  []TxnGuard
	Puts    []EtcdKvItem // only Key/Value are used
	Deletes []string
}

func NewEtcdTxn() *EtcdTxn {
	return &EtcdTxn{}
}

func (txn *EtcdTxn) Guard(key string, rev EtcdRevision) *EtcdTxn {
	txn.Guards = append(txn.Guards, TxnGuard{Key: key, ModRevision: rev})
	return txn
}

func (txn *EtcdTxn) Put(key, value string) *EtcdTxn {
	txn.Puts = append(txn.Puts, EtcdKvItem{Key: key, Value: value})
	return txn
}

func (txn *EtcdTxn) Delete(key string) *EtcdTxn {
	txn.Deletes = append(txn.Deletes, key)
	return txn
}

func (txn *EtcdTxn) String() string {
	return fmt.Sprintf("guards=%d puts=%d deletes=%d", len(txn.Guards), len(txn.Puts), len(txn.Deletes))
}

// EtcdProvider is the persistence boundary. Implementations panic a *kerror.Kerror on store failure.
type EtcdProvider interface {
	// Get returns an item with ModRevision 0 when key does not exist.
	Get(ctx context.Context, key string) EtcdKvItem

	Set(ctx context.Context, key, value string)

	// Delete: strictMode panics ErrKeyNotFound if key is missing.
	Delete(ctx context.Context, key string, strictMode bool)

	// DeleteByPrefix returns the number of keys removed.
	DeleteByPrefix(ctx context.Context, pathPrefix string) int

	// LoadAllByPrefix reads every key under pathPrefix at one revision, sorted by key.
	LoadAllByPrefix(ctx context.Context, pathPrefix string) ([]EtcdKvItem, EtcdRevision)

	// WatchByPrefix streams changes after revision. Deletes arrive with an empty Value. The channel closes with ctx.
	WatchByPrefix(ctx context.Context, pathPrefix string, revision EtcdRevision) chan *EtcdKvItem

	// Commit returns false when any guard did not hold, nothing is applied in that case.
	Commit(ctx context.Context, txn *EtcdTxn) bool

	Close()
}

var (
	providerMu          sync.Mutex
	currentEtcdProvider EtcdProvider
)

// GetCurrentEtcdProvider creates the default provider from ETCD_ENDPOINTS on first use.
func GetCurrentEtcdProvider(ctx context.Context) EtcdProvider {
	providerMu.Lock()
	defer providerMu.Unlock()
	if currentEtcdProvider == nil {
		currentEtcdProvider = NewDefaultEtcdProvider(ctx, getEndpointsFromEnv(), getDialTimeoutMsFromEnv())
	}
	return currentEtcdProvider
}

func SetCurrentEtcdProvider(provider EtcdProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	currentEtcdProvider = provider
}

// RunWithEtcdProvider swaps the current provider for the duration of fn, even if fn panics.
func RunWithEtcdProvider(provider EtcdProvider, fn func()) {
	providerMu.Lock()
	oldProvider := currentEtcdProvider
	currentEtcdProvider = provider
	providerMu.Unlock()
	klogging.Debug(context.Background()).With("provider", fmt.Sprintf("%T", provider)).Log("RunWithEtcdProvider", "")

	defer func() {
		providerMu.Lock()
		currentEtcdProvider = oldProvider
		providerMu.Unlock()
	}()
	fn()
}
