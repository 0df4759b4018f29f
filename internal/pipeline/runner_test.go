package pipeline

import (
	"context"
	"testing"
	"time"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/core/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not drain")
	}
}

func TestRunner_StopThenStartResumes(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := memory.New()
	appendAll(t, store, cartAction("c1", 0, "CA", 10, v1.ActionPurchased))

	base, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRunner(base, NewCoordinator(Dependencies{
		Source: store, Checkpoints: store, DeadLetters: store,
		Folder: newFolder(), Writer: newWriter(store),
	}, testOptions(0)))

	assert.False(t, r.Running())
	assert.False(t, r.Stop())

	require.True(t, r.Start())
	assert.False(t, r.Start())
	waitCheckpoint(t, store, 0, 1)

	require.True(t, r.Stop())
	waitDone(t, r)
	assert.False(t, r.Running())
	assert.Equal(t, StateStopped, r.Status()[0].State)

	// Records that arrive while stopped are picked up by the next run.
	appendAll(t, store, cartAction("c2", 0, "CA", 5, v1.ActionPurchased))
	require.True(t, r.Start())
	waitCheckpoint(t, store, 0, 2)
	requireRow(t, store, "CA", 2, "15")

	cancel()
	waitDone(t, r)
	assert.False(t, r.Start())
}

func TestRunner_DoneClosedBeforeStart(t *testing.T) {
	store := memory.New()
	r := NewRunner(context.Background(), NewCoordinator(Dependencies{
		Source: store, Checkpoints: store, DeadLetters: store,
		Folder: newFolder(), Writer: newWriter(store),
	}, testOptions(0)))

	select {
	case <-r.Done():
	default:
		t.Fatal("Done should be closed before the first run")
	}
}
