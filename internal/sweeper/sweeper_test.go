package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feastly/teamcart/internal/domain/teamcart"
)

// --- Mock implementations ---

type mockSource struct {
	mu       sync.Mutex
	batches  [][]*teamcart.TeamCart
	fetchErr error
	fetches  int
}

func (m *mockSource) GetExpiringCarts(_ context.Context, _ time.Time, _ int) ([]*teamcart.TeamCart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

type mockExpirer struct {
	mu      sync.Mutex
	expired []string
	errs    map[string]error
}

func newMockExpirer() *mockExpirer {
	return &mockExpirer{errs: make(map[string]error)}
}

func (m *mockExpirer) ExpireCart(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[cartID]; err != nil {
		return err
	}
	m.expired = append(m.expired, cartID)
	return nil
}

func (m *mockExpirer) expiredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.expired)
}

// --- Helpers ---

func cartWithID(id string) *teamcart.TeamCart {
	c := teamcart.New("host", "Alice", "rest-1", time.Hour)
	c.ID = id
	return c
}

// --- Tests ---

func TestSweepOnce_ExpiresCandidates(t *testing.T) {
	src := &mockSource{batches: [][]*teamcart.TeamCart{
		{cartWithID("c1"), cartWithID("c2")},
	}}
	exp := newMockExpirer()

	s := New(Config{BatchSize: 50}, src, exp)
	s.SweepOnce(context.Background())

	assert.Equal(t, []string{"c1", "c2"}, exp.expired)
}

func TestSweepOnce_VersionConflictSkipped(t *testing.T) {
	src := &mockSource{batches: [][]*teamcart.TeamCart{
		{cartWithID("c1"), cartWithID("c2"), cartWithID("c3")},
	}}
	exp := newMockExpirer()
	exp.errs["c2"] = teamcart.ErrVersionConflict

	s := New(Config{BatchSize: 50}, src, exp)
	s.SweepOnce(context.Background())

	assert.Equal(t, []string{"c1", "c3"}, exp.expired)
}

func TestSweepOnce_NotFoundSkipped(t *testing.T) {
	src := &mockSource{batches: [][]*teamcart.TeamCart{
		{cartWithID("c1"), cartWithID("c2")},
	}}
	exp := newMockExpirer()
	exp.errs["c1"] = teamcart.ErrCartNotFound

	s := New(Config{BatchSize: 50}, src, exp)
	s.SweepOnce(context.Background())

	assert.Equal(t, []string{"c2"}, exp.expired)
}

func TestSweepOnce_DrainsFullBatches(t *testing.T) {
	src := &mockSource{batches: [][]*teamcart.TeamCart{
		{cartWithID("c1"), cartWithID("c2")},
		{cartWithID("c3")},
	}}
	exp := newMockExpirer()

	s := New(Config{BatchSize: 2}, src, exp)
	s.SweepOnce(context.Background())

	// First batch is full, so the sweep fetches again; the second batch is
	// partial and ends the sweep.
	assert.Equal(t, []string{"c1", "c2", "c3"}, exp.expired)
	assert.Equal(t, 2, src.fetches)
}

func TestSweepOnce_NoProgressStopsSweep(t *testing.T) {
	stuck := []*teamcart.TeamCart{cartWithID("c1"), cartWithID("c2")}
	src := &mockSource{batches: [][]*teamcart.TeamCart{stuck, stuck, stuck}}
	exp := newMockExpirer()
	exp.errs["c1"] = errors.New("db down")
	exp.errs["c2"] = errors.New("db down")

	s := New(Config{BatchSize: 2}, src, exp)
	s.SweepOnce(context.Background())

	// A full batch with zero progress must not loop forever.
	assert.Equal(t, 0, exp.expiredCount())
	assert.Equal(t, 1, src.fetches)
}

func TestSweepOnce_FetchErrorAborts(t *testing.T) {
	src := &mockSource{fetchErr: errors.New("db down")}
	exp := newMockExpirer()

	s := New(Config{BatchSize: 50}, src, exp)
	s.SweepOnce(context.Background())

	assert.Equal(t, 0, exp.expiredCount())
}

func TestSweepOnce_CancelledContext(t *testing.T) {
	src := &mockSource{batches: [][]*teamcart.TeamCart{
		{cartWithID("c1")},
	}}
	exp := newMockExpirer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Config{BatchSize: 50}, src, exp)
	s.SweepOnce(ctx)

	assert.Equal(t, 0, exp.expiredCount())
}

func TestRun_StopsOnCancel(t *testing.T) {
	src := &mockSource{batches: [][]*teamcart.TeamCart{
		{cartWithID("c1")},
	}}
	exp := newMockExpirer()

	s := New(Config{Cadence: 5 * time.Millisecond, BatchSize: 50}, src, exp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return exp.expiredCount() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestSweepCutoff_RespectsGraceWindow(t *testing.T) {
	var gotCutoff time.Time
	src := &cutoffSource{onFetch: func(cutoff time.Time) { gotCutoff = cutoff }}
	exp := newMockExpirer()

	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s := New(Config{BatchSize: 50, GraceWindow: 5 * time.Minute}, src, exp)
	s.now = func() time.Time { return fixed }

	s.SweepOnce(context.Background())
	assert.Equal(t, fixed.Add(-5*time.Minute), gotCutoff)
}

type cutoffSource struct {
	onFetch func(cutoff time.Time)
}

func (s *cutoffSource) GetExpiringCarts(_ context.Context, cutoff time.Time, _ int) ([]*teamcart.TeamCart, error) {
	s.onFetch(cutoff)
	return nil, nil
}
