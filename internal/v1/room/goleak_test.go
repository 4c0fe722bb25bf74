package room

import (
	"context"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// The snapshot writer is the only goroutine the room spawns; this makes sure
// it finishes even when the last session leaves mid-write.
func TestRoom_NoGoroutineLeakOnTeardown(t *testing.T) {
	rig := newTestRig(t)
	s, _ := joinSession(t, rig, "editor-token")

	rig.room.Route(context.Background(), s, opMsg("board-1", "op-1", "obj-1"))
	rig.room.Detach(context.Background(), s)

	// Drain the flush triggered by the final detach so goleak sees a quiet
	// process at exit.
	<-rig.store.insertCh
	waitSnapshotIdle(t, rig)
}
