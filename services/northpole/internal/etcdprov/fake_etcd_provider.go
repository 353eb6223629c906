package etcdprov

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
)

// FakeEtcdProvider is an in-memory EtcdProvider with etcd's revision semantics.
type FakeEtcdProvider struct {
	mu              sync.RWMutex
	data            map[string]*fakeKV
	currentRevision EtcdRevision
	watchers        []*fakeWatcher

	// BeforeCommit, if set, runs before every Commit evaluates its guards (outside the lock).
	BeforeCommit func(txn *EtcdTxn)
}

type fakeKV struct {
	Value       string
	ModRevision EtcdRevision
	CreateRev   EtcdRevision
}

type fakeWatcher struct {
	prefix string
	ch     chan *EtcdKvItem
}

func NewFakeEtcdProvider() *FakeEtcdProvider {
	return &FakeEtcdProvider{
		data:            make(map[string]*fakeKV),
		currentRevision: 1,
	}
}

func (f *FakeEtcdProvider) Get(ctx context.Context, key string) EtcdKvItem {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if kv, exists := f.data[key]; exists {
		return EtcdKvItem{Key: key, Value: kv.Value, ModRevision: kv.ModRevision, CreateRevision: kv.CreateRev}
	}
	return EtcdKvItem{Key: key}
}

func (f *FakeEtcdProvider) Set(ctx context.Context, key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentRevision++
	f.putLocked(key, value)
}

// putLocked writes at currentRevision, caller bumps the revision.
func (f *FakeEtcdProvider) putLocked(key, value string) {
	kv, exists := f.data[key]
	if exists {
		kv.Value = value
		kv.ModRevision = f.currentRevision
	} else {
		kv = &fakeKV{Value: value, ModRevision: f.currentRevision, CreateRev: f.currentRevision}
		f.data[key] = kv
	}
	f.notifyWatchers(EtcdKvItem{Key: key, Value: value, ModRevision: kv.ModRevision, CreateRevision: kv.CreateRev})
}

func (f *FakeEtcdProvider) deleteLocked(key string) bool {
	kv, exists := f.data[key]
	if !exists {
		return false
	}
	delete(f.data, key)
	f.notifyWatchers(EtcdKvItem{Key: key, ModRevision: f.currentRevision, CreateRevision: kv.CreateRev})
	return true
}

func (f *FakeEtcdProvider) Delete(ctx context.Context, key string, strictMode bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.data[key]; !exists {
		if strictMode {
			panic(ErrKeyNotFound.With("key", key))
		}
		return
	}
	f.currentRevision++
	f.deleteLocked(key)
}

func (f *FakeEtcdProvider) DeleteByPrefix(ctx context.Context, pathPrefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := f.keysByPrefixLocked(pathPrefix)
	if len(keys) == 0 {
		return 0
	}
	f.currentRevision++
	for _, k := range keys {
		f.deleteLocked(k)
	}
	return len(keys)
}

func (f *FakeEtcdProvider) keysByPrefixLocked(pathPrefix string) []string {
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, pathPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *FakeEtcdProvider) LoadAllByPrefix(ctx context.Context, pathPrefix string) ([]EtcdKvItem, EtcdRevision) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := f.keysByPrefixLocked(pathPrefix)
	items := make([]EtcdKvItem, 0, len(keys))
	for _, k := range keys {
		kv := f.data[k]
		items = append(items, EtcdKvItem{Key: k, Value: kv.Value, ModRevision: kv.ModRevision, CreateRevision: kv.CreateRev})
	}
	return items, f.currentRevision
}

// WatchByPrefix only delivers changes made after the call; history before it is not replayed.
func (f *FakeEtcdProvider) WatchByPrefix(ctx context.Context, pathPrefix string, revision EtcdRevision) chan *EtcdKvItem {
	w := &fakeWatcher{prefix: pathPrefix, ch: make(chan *EtcdKvItem, 1000)}
	f.mu.Lock()
	f.watchers = append(f.watchers, w)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, item := range f.watchers {
			if item == w {
				f.watchers = append(f.watchers[:i], f.watchers[i+1:]...)
				break
			}
		}
		close(w.ch)
	}()
	return w.ch
}

func (f *FakeEtcdProvider) notifyWatchers(item EtcdKvItem) {
	for _, w := range f.watchers {
		if !strings.HasPrefix(item.Key, w.prefix) {
			continue
		}
		copied := item
		select {
		case w.ch <- &copied:
		default:
			klogging.Warning(context.Background()).With("key", item.Key).With("prefix", w.prefix).Log("FakeWatchDropped", "watcher channel full")
		}
	}
}

func (f *FakeEtcdProvider) Commit(ctx context.Context, txn *EtcdTxn) bool {
	if f.BeforeCommit != nil {
		f.BeforeCommit(txn)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range txn.Guards {
		var current EtcdRevision
		if kv, ok := f.data[g.Key]; ok {
			current = kv.ModRevision
		}
		if current != g.ModRevision {
			return false
		}
	}
	if len(txn.Puts) == 0 && len(txn.Deletes) == 0 {
		return true
	}
	f.currentRevision++
	for _, p := range txn.Puts {
		f.putLocked(p.Key, p.Value)
	}
	for _, k := range txn.Deletes {
		f.deleteLocked(k)
	}
	return true
}

func (f *FakeEtcdProvider) Close() {}

// Revision returns the current store revision.
func (f *FakeEtcdProvider) Revision() EtcdRevision {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.currentRevision
}
