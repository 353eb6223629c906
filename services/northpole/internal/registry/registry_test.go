package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/services/northpole/internal/config"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
	"github.com/xinkaiwang/northpole/services/northpole/npjson"
)

func newTestRegistry() (*Registry, *etcdprov.FakeEtcdProvider) {
	fake := etcdprov.NewFakeEtcdProvider()
	return NewRegistry(fake, config.NewPathManager("/np")), fake
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	w, err := reg.Create(ctx, data.WC_Elves, "test")
	require.NoError(t, err)
	assert.Equal(t, data.WS_Ready, w.State)
	assert.Equal(t, data.WC_Elves, w.Class)
	assert.NotZero(t, w.Seq)

	got, err := reg.Get(ctx, w.Id)
	require.NoError(t, err)
	assert.Equal(t, w.Id, got.Id)

	_, err = reg.Get(ctx, "nope")
	assert.True(t, kerror.IsErrorCode(err, kerror.EC_NOT_FOUND))
}

func TestCreateUnknownClass(t *testing.T) {
	reg, _ := newTestRegistry()
	_, err := reg.Create(context.Background(), data.WorkerClass("gnomes"), "test")
	assert.True(t, kerror.IsErrorCode(err, kerror.EC_INVALID_PARAMETER))
}

func TestListByClassAndStateOrder(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	var ids []data.WorkerId
	for i := 0; i < 5; i++ {
		w, err := reg.Create(ctx, data.WC_Elves, "test")
		require.NoError(t, err)
		ids = append(ids, w.Id)
		_, err = reg.Create(ctx, data.WC_Reindeer, "test")
		require.NoError(t, err)
	}
	// a state change must not move a worker in the order
	_, err := reg.SetState(ctx, ids[0], data.WS_Vacationing, "test")
	require.NoError(t, err)
	_, err = reg.SetState(ctx, ids[0], data.WS_Ready, "test")
	require.NoError(t, err)

	list, err := reg.ListByClassAndState(ctx, data.WC_Elves, data.WS_Ready)
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i, w := range list {
		assert.Equal(t, ids[i], w.Id)
	}
}

func TestSortWorkersTieBreak(t *testing.T) {
	list := []*Worker{{Id: "c", Seq: 5}, {Id: "a", Seq: 5}, {Id: "b", Seq: 2}}
	SortWorkers(list)
	assert.Equal(t, []data.WorkerId{"b", "a", "c"}, []data.WorkerId{list[0].Id, list[1].Id, list[2].Id})
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()
	w, _ := reg.Create(ctx, data.WC_Reindeer, "test")

	_, err := reg.Transition(ctx, w.Id, data.WS_Vacationing, data.WS_Ready, "back")
	assert.True(t, kerror.IsErrorCode(err, kerror.EC_CONFLICT))

	_, err = reg.SetState(ctx, w.Id, data.WS_Vacationing, "test")
	require.NoError(t, err)
	got, err := reg.Transition(ctx, w.Id, data.WS_Vacationing, data.WS_Ready, "back")
	require.NoError(t, err)
	assert.Equal(t, data.WS_Ready, got.State)
	assert.Equal(t, "back", got.UpdateReason)

	_, err = reg.Transition(ctx, "missing", data.WS_Vacationing, data.WS_Ready, "back")
	assert.True(t, kerror.IsErrorCode(err, kerror.EC_NOT_FOUND))
}

func TestSetStateConcurrent(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()
	w, _ := reg.Create(ctx, data.WC_Elves, "test")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.SetState(ctx, w.Id, data.WS_Vacationing, "race")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	got, _ := reg.Get(ctx, w.Id)
	assert.Equal(t, data.WS_Vacationing, got.State)
}

func TestSnapshotAndCommitGroup(t *testing.T) {
	ctx := context.Background()
	reg, fake := newTestRegistry()
	for i := 0; i < 3; i++ {
		_, err := reg.Create(ctx, data.WC_Elves, "test")
		require.NoError(t, err)
	}
	snap, err := reg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, data.SS_Idle, snap.SystemState())

	var changed []*Worker
	var members []data.WorkerId
	for _, w := range snap.Workers {
		changed = append(changed, w.WithState(data.WS_Working, "promoted"))
		members = append(members, w.Id)
	}
	group := npjson.NewGroupJson(data.WC_Elves, members)

	// someone else touches a member between snapshot and commit
	_, err = reg.SetState(ctx, members[1], data.WS_Ready, "poke")
	require.NoError(t, err)
	ok, err := reg.CommitGroup(ctx, snap, changed, group)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, fake.Get(ctx, reg.pm.GetGroupPath()).Exists())

	snap, _ = reg.Snapshot(ctx)
	changed = changed[:0]
	for _, w := range snap.Workers {
		changed = append(changed, w.WithState(data.WS_Working, "promoted"))
	}
	ok, err = reg.CommitGroup(ctx, snap, changed, group)
	require.NoError(t, err)
	assert.True(t, ok)

	snap, _ = reg.Snapshot(ctx)
	assert.Equal(t, data.SS_Active, snap.SystemState())
	assert.Equal(t, group.GroupId, snap.Group.GroupId)
	assert.Len(t, snap.ListByState(data.WS_Working), 3)

	// releasing with nil group deletes the record
	changed = changed[:0]
	for _, w := range snap.Workers {
		changed = append(changed, w.WithState(data.WS_Vacationing, "released"))
	}
	ok, err = reg.CommitGroup(ctx, snap, changed, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	snap, _ = reg.Snapshot(ctx)
	assert.Nil(t, snap.Group)
	for _, w := range snap.Workers {
		assert.Equal(t, group.GroupId, w.GroupId)
	}
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	reg, fake := newTestRegistry()
	fake.Set(ctx, reg.pm.GetSpeedPath(), `{"work_speed":10,"vacation_speed":10}`)
	w, _ := reg.Create(ctx, data.WC_Elves, "test")
	_, _ = reg.Create(ctx, data.WC_Reindeer, "test")

	count, err := reg.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	_, err = reg.Get(ctx, w.Id)
	assert.True(t, kerror.IsErrorCode(err, kerror.EC_NOT_FOUND))
	assert.True(t, fake.Get(ctx, reg.pm.GetSpeedPath()).Exists())
}

func TestSnapshotCorruptRecord(t *testing.T) {
	ctx := context.Background()
	reg, fake := newTestRegistry()
	fake.Set(ctx, reg.pm.FmtWorkerPath("bad"), `{"id":"bad","class":"gnomes","state":"ready"}`)
	_, err := reg.Snapshot(ctx)
	assert.True(t, kerror.IsErrorCode(err, kerror.EC_INTERNAL_ERROR))
}
