package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumaboard/whiteboard/internal/v1/board"
)

// testClock is a manually advanced clock for cadence tests.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func drainSnapshots(t *testing.T, rig *testRig, want int) {
	t.Helper()
	for i := 0; i < want; i++ {
		select {
		case <-rig.store.insertCh:
		case <-time.After(time.Second):
			t.Fatalf("expected %d snapshot attempts, got %d", want, i)
		}
	}
}

func waitSnapshotIdle(t *testing.T, rig *testRig) {
	t.Helper()
	require.Eventually(t, func() bool {
		rig.room.mu.Lock()
		defer rig.room.mu.Unlock()
		return !rig.room.snapshotInFlight
	}, time.Second, time.Millisecond)
}

func TestSnapshot_OpCadence(t *testing.T) {
	rig := newTestRig(t)
	clock := newTestClock()
	s, _ := joinSession(t, rig, "editor-token")
	rig.room.now = clock.Now

	for i := 0; i < SnapshotOpInterval; i++ {
		rig.room.Route(context.Background(), s, opMsg("board-1", fmt.Sprintf("op-%d", i), fmt.Sprintf("obj-%d", i)))
	}

	drainSnapshots(t, rig, 1)
	waitSnapshotIdle(t, rig)

	snaps := rig.store.insertedSnapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(SnapshotOpInterval), snaps[0].Seq)

	var st board.State
	require.NoError(t, json.Unmarshal(snaps[0].State, &st))
	assert.Len(t, st.Objects, SnapshotOpInterval)
	assert.Empty(t, st.SelectedObjectIDs, "persisted snapshots are sanitized")
	assert.Nil(t, st.CurrentViewport)
}

func TestSnapshot_NotBeforeOpInterval(t *testing.T) {
	rig := newTestRig(t)
	clock := newTestClock()
	s, _ := joinSession(t, rig, "editor-token")
	rig.room.now = clock.Now

	for i := 0; i < SnapshotOpInterval-1; i++ {
		rig.room.Route(context.Background(), s, opMsg("board-1", fmt.Sprintf("op-%d", i), fmt.Sprintf("obj-%d", i)))
	}

	select {
	case <-rig.store.insertCh:
		t.Fatal("snapshot taken before the op interval")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSnapshot_TimeCadence(t *testing.T) {
	rig := newTestRig(t)
	clock := newTestClock()
	s, _ := joinSession(t, rig, "editor-token")
	rig.room.mu.Lock()
	rig.room.now = clock.Now
	rig.room.lastSnapshotAt = clock.Now()
	rig.room.mu.Unlock()

	rig.room.Route(context.Background(), s, opMsg("board-1", "op-1", "obj-1"))
	select {
	case <-rig.store.insertCh:
		t.Fatal("snapshot taken before the time interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(SnapshotTimeInterval + time.Second)
	rig.room.Route(context.Background(), s, opMsg("board-1", "op-2", "obj-2"))

	drainSnapshots(t, rig, 1)
	waitSnapshotIdle(t, rig)
	snaps := rig.store.insertedSnapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(2), snaps[0].Seq)
}

func TestSnapshot_MinRetryAfterFailure(t *testing.T) {
	rig := newTestRig(t)
	clock := newTestClock()
	s, _ := joinSession(t, rig, "editor-token")
	rig.store.mu.Lock()
	rig.store.insertErr = fmt.Errorf("supabase down")
	rig.store.mu.Unlock()
	rig.room.mu.Lock()
	rig.room.now = clock.Now
	rig.room.lastSnapshotAt = clock.Now()
	rig.room.mu.Unlock()

	clock.Advance(SnapshotTimeInterval + time.Second)
	rig.room.Route(context.Background(), s, opMsg("board-1", "op-1", "obj-1"))
	drainSnapshots(t, rig, 1)
	waitSnapshotIdle(t, rig)

	// Within the retry floor nothing new is attempted even though the cadence
	// condition still holds.
	clock.Advance(SnapshotMinRetry - time.Second)
	rig.room.Route(context.Background(), s, opMsg("board-1", "op-2", "obj-2"))
	select {
	case <-rig.store.insertCh:
		t.Fatal("retry attempted inside the minimum retry window")
	case <-time.After(50 * time.Millisecond):
	}

	// Past the floor the retry happens and, with the store healthy again,
	// succeeds.
	rig.store.mu.Lock()
	rig.store.insertErr = nil
	rig.store.mu.Unlock()
	clock.Advance(2 * time.Second)
	rig.room.Route(context.Background(), s, opMsg("board-1", "op-3", "obj-3"))
	drainSnapshots(t, rig, 1)
	waitSnapshotIdle(t, rig)

	snaps := rig.store.insertedSnapshots()
	require.Len(t, snaps, 1, "only the successful attempt lands")
	assert.Equal(t, int64(3), snaps[0].Seq)
}

func TestSnapshot_EphemeralOpsDoNotTrigger(t *testing.T) {
	rig := newTestRig(t)
	clock := newTestClock()
	s, _ := joinSession(t, rig, "editor-token")
	rig.room.mu.Lock()
	rig.room.now = clock.Now
	rig.room.lastSnapshotAt = clock.Now()
	rig.room.mu.Unlock()

	clock.Advance(SnapshotTimeInterval + time.Second)
	rig.room.Route(context.Background(), s, selectionOpMsg("board-1", "op-sel"))

	select {
	case <-rig.store.insertCh:
		t.Fatal("ephemeral op must not trigger the snapshot cadence")
	case <-time.After(50 * time.Millisecond):
	}
}
