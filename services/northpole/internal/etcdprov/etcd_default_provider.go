package etcdprov

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type etcdDefaultProvider struct {
	client *clientv3.Client
}

// NewDefaultEtcdProvider panics EtcdConnectError when the client cannot be built.
func NewDefaultEtcdProvider(_ context.Context, endpoints []string, dialTimeoutMs int) EtcdProvider {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: time.Duration(dialTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		panic(kerror.Wrap(err, "EtcdConnectError", "failed to connect to etcd", false).
			WithErrorCode(kerror.EC_NETWORK_ERR).
			With("endpoints", strings.Join(endpoints, ",")))
	}
	return &etcdDefaultProvider{
		client: cli,
	}
}

func getEndpointsFromEnv() []string {
	return strings.Split(kcommon.GetEnvString("ETCD_ENDPOINTS", "localhost:2379"), ",")
}

func getDialTimeoutMsFromEnv() int {
	return kcommon.GetEnvInt("ETCD_DIAL_TIMEOUT_MS", 5000)
}

// storeError classifies a client error: deadline is EC_TIMEOUT, unavailable is EC_RETRYABLE.
func storeError(err error, errType, msg string) *kerror.Kerror {
	code := kerror.EC_INTERNAL_ERROR
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		code = kerror.EC_TIMEOUT
	case status.Code(err) == codes.Unavailable || clientv3.IsConnCanceled(err):
		code = kerror.EC_RETRYABLE
	}
	return kerror.Wrap(err, errType, msg, false).WithErrorCode(code)
}

func toKvItem(key []byte, value []byte, modRev, createRev int64) EtcdKvItem {
	return EtcdKvItem{
		Key:            string(key),
		Value:          string(value),
		ModRevision:    EtcdRevision(modRev),
		CreateRevision: EtcdRevision(createRev),
	}
}

func (pvd *etcdDefaultProvider) Get(ctx context.Context, key string) EtcdKvItem {
	resp, err := pvd.client.Get(ctx, key)
	if err != nil {
		panic(storeError(err, "EtcdGetError", "failed to get key from etcd").With("key", key))
	}
	if len(resp.Kvs) == 0 {
		return EtcdKvItem{Key: key}
	}
	kv := resp.Kvs[0]
	return toKvItem(kv.Key, kv.Value, kv.ModRevision, kv.CreateRevision)
}

func (pvd *etcdDefaultProvider) Set(ctx context.Context, key, value string) {
	if _, err := pvd.client.Put(ctx, key, value); err != nil {
		panic(storeError(err, "EtcdPutError", "failed to set key in etcd").With("key", key))
	}
}

func (pvd *etcdDefaultProvider) Delete(ctx context.Context, key string, strictMode bool) {
	resp, err := pvd.client.Delete(ctx, key)
	if err != nil {
		panic(storeError(err, "EtcdDeleteError", "failed to delete key from etcd").With("key", key))
	}
	if strictMode && resp.Deleted == 0 {
		panic(kerror.Create("KeyNotFound", "key not found in etcd").
			WithErrorCode(kerror.EC_NOT_FOUND).
			With("key", key))
	}
}

func (pvd *etcdDefaultProvider) DeleteByPrefix(ctx context.Context, pathPrefix string) int {
	resp, err := pvd.client.Delete(ctx, pathPrefix, clientv3.WithPrefix())
	if err != nil {
		panic(storeError(err, "EtcdDeleteError", "failed to delete prefix from etcd").With("pathPrefix", pathPrefix))
	}
	klogging.Info(ctx).With("pathPrefix", pathPrefix).With("deleted", resp.Deleted).Log("DeleteByPrefix", "")
	return int(resp.Deleted)
}

// LoadAllByPrefix pages through the prefix, every page pinned to the revision of the first read.
func (pvd *etcdDefaultProvider) LoadAllByPrefix(ctx context.Context, pathPrefix string) ([]EtcdKvItem, EtcdRevision) {
	const pageSize = 1000
	var items []EtcdKvItem
	var revision int64
	key := pathPrefix
	rangeEnd := clientv3.GetPrefixRangeEnd(pathPrefix)
	for {
		opts := []clientv3.OpOption{
			clientv3.WithRange(rangeEnd),
			clientv3.WithLimit(pageSize),
			clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
		}
		if revision != 0 {
			opts = append(opts, clientv3.WithRev(revision))
		}
		resp, err := pvd.client.Get(ctx, key, opts...)
		if err != nil {
			panic(storeError(err, "EtcdLoadError", "failed to load keys from etcd").With("pathPrefix", pathPrefix))
		}
		if revision == 0 {
			revision = resp.Header.Revision
		}
		for _, kv := range resp.Kvs {
			items = append(items, toKvItem(kv.Key, kv.Value, kv.ModRevision, kv.CreateRevision))
		}
		if !resp.More || len(resp.Kvs) == 0 {
			break
		}
		// next page starts right after the last key
		key = string(resp.Kvs[len(resp.Kvs)-1].Key) + "\x00"
	}
	klogging.Verbose(ctx).
		With("pathPrefix", pathPrefix).
		With("count", len(items)).
		With("revision", revision).
		Log("LoadAllByPrefix", "")
	return items, EtcdRevision(revision)
}

func (pvd *etcdDefaultProvider) WatchByPrefix(ctx context.Context, pathPrefix string, revision EtcdRevision) chan *EtcdKvItem {
	eventChan := make(chan *EtcdKvItem, 100)

	go func() {
		defer close(eventChan)
		currentRev := revision
		for {
			if ctx.Err() != nil {
				return
			}
			opts := []clientv3.OpOption{clientv3.WithPrefix()}
			if currentRev > 0 {
				opts = append(opts, clientv3.WithRev(int64(currentRev)))
			}
			klogging.Debug(ctx).With("pathPrefix", pathPrefix).With("revision", currentRev).Log("WatchByPrefix", "starting watch")
			watchChan := pvd.client.Watch(clientv3.WithRequireLeader(ctx), pathPrefix, opts...)

			for wresp := range watchChan {
				if wresp.CompactRevision > 0 {
					klogging.Warning(ctx).
						With("pathPrefix", pathPrefix).
						With("requestedRevision", currentRev).
						With("compactRevision", wresp.CompactRevision).
						Log("WatchCompacted", "requested revision has been compacted")
					currentRev = EtcdRevision(wresp.CompactRevision)
					break
				}
				if err := wresp.Err(); err != nil {
					klogging.Warning(ctx).WithError(err).With("pathPrefix", pathPrefix).Log("WatchError", "re-establishing watch")
					break
				}
				for _, event := range wresp.Events {
					item := toKvItem(event.Kv.Key, event.Kv.Value, event.Kv.ModRevision, event.Kv.CreateRevision)
					if event.Type == clientv3.EventTypeDelete {
						item.Value = ""
					}
					currentRev = item.ModRevision + 1
					select {
					case eventChan <- &item:
					case <-ctx.Done():
						return
					}
				}
			}
			if !kcommon.SleepMs(ctx, 1000) {
				return
			}
		}
	}()
	return eventChan
}

func (pvd *etcdDefaultProvider) Commit(ctx context.Context, txn *EtcdTxn) bool {
	cmps := make([]clientv3.Cmp, 0, len(txn.Guards))
	for _, g := range txn.Guards {
		cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(g.Key), "=", int64(g.ModRevision)))
	}
	ops := make([]clientv3.Op, 0, len(txn.Puts)+len(txn.Deletes))
	for _, p := range txn.Puts {
		ops = append(ops, clientv3.OpPut(p.Key, p.Value))
	}
	for _, k := range txn.Deletes {
		ops = append(ops, clientv3.OpDelete(k))
	}
	resp, err := pvd.client.Txn(ctx).If(cmps...).Then(ops...).Commit()
	if err != nil {
		panic(storeError(err, "EtcdTxnError", "failed to commit txn").With("txn", txn.String()))
	}
	return resp.Succeeded
}

func (pvd *etcdDefaultProvider) Close() {
	if err := pvd.client.Close(); err != nil {
		klogging.Warning(context.Background()).WithError(err).Log("EtcdCloseError", "")
	}
}
