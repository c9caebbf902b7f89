package janitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitdesk/enrollkit/internal/store"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

type fakeDiscarder struct {
	mu      sync.Mutex
	calls   int
	got     [][]string
	release chan struct{}
	started chan struct{}
	err     error
}

func (d *fakeDiscarder) DiscardTempUploads(_ context.Context, tempIDs []string) error {
	d.mu.Lock()
	d.calls++
	d.got = append(d.got, tempIDs)
	d.mu.Unlock()
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.release != nil {
		<-d.release
	}
	return d.err
}

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedHandles(t *testing.T, s *store.LibSQLStore) {
	t.Helper()
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.RecordTempHandle(ctx, &store.TempHandle{
		TempID: "tmp-old-1", WizardID: "w1", Slot: "images", IssuedAt: old,
	}))
	require.NoError(t, s.RecordTempHandle(ctx, &store.TempHandle{
		TempID: "tmp-old-2", WizardID: "w1", Slot: "images", IssuedAt: old,
	}))
	require.NoError(t, s.RecordTempHandle(ctx, &store.TempHandle{
		TempID: "tmp-fresh", WizardID: "w2", Slot: "contract",
	}))
}

func TestSweep_DiscardsOldUnclaimedOnly(t *testing.T) {
	s := newTestStore(t)
	seedHandles(t, s)
	disc := &fakeDiscarder{}
	j := New(s, disc, Config{MaxAge: 24 * time.Hour}, nil)
	ctx := context.Background()

	require.NoError(t, j.Sweep(ctx))

	require.Len(t, disc.got, 1)
	assert.ElementsMatch(t, []string{"tmp-old-1", "tmp-old-2"}, disc.got[0])

	// Swept handles are gone; the fresh one survives.
	remaining, err := s.UnclaimedTempHandles(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "tmp-fresh", remaining[0].TempID)

	events, err := s.GetEvents(ctx, "janitor", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schema.EventTempHandlesDiscarded, events[0].Type)
}

func TestSweep_NothingToDo(t *testing.T) {
	s := newTestStore(t)
	disc := &fakeDiscarder{}
	j := New(s, disc, Config{}, nil)

	require.NoError(t, j.Sweep(context.Background()))
	assert.Zero(t, disc.calls)
}

func TestSweep_DiscarderFailureKeepsHandles(t *testing.T) {
	s := newTestStore(t)
	seedHandles(t, s)
	disc := &fakeDiscarder{err: errors.New("backend down")}
	j := New(s, disc, Config{MaxAge: 24 * time.Hour}, nil)
	ctx := context.Background()

	require.Error(t, j.Sweep(ctx))

	remaining, err := s.UnclaimedTempHandles(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestSweep_OverlappingSweepsSkipped(t *testing.T) {
	s := newTestStore(t)
	seedHandles(t, s)
	disc := &fakeDiscarder{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	j := New(s, disc, Config{MaxAge: 24 * time.Hour}, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- j.Sweep(ctx) }()
	<-disc.started

	// The second sweep returns immediately without touching the discarder.
	require.NoError(t, j.Sweep(ctx))
	assert.Equal(t, 1, disc.calls)

	close(disc.release)
	require.NoError(t, <-done)
}

func TestJanitor_StartStop(t *testing.T) {
	s := newTestStore(t)
	j := New(s, &fakeDiscarder{}, Config{Schedule: "not a cron"}, nil)
	require.Error(t, j.Start(context.Background()))

	j = New(s, &fakeDiscarder{}, Config{}, nil)
	require.NoError(t, j.Start(context.Background()))
	require.Error(t, j.Start(context.Background()))
	require.NoError(t, j.Stop())
	require.NoError(t, j.Stop())
}
