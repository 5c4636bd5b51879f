package events

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

type memOutbox struct {
	mu         sync.Mutex
	envs       []Envelope
	dispatched map[string]bool
	fetchErr   error
}

func newMemOutbox(envs ...Envelope) *memOutbox {
	return &memOutbox{envs: envs, dispatched: make(map[string]bool)}
}

func (o *memOutbox) Append(_ context.Context, envs []Envelope) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.envs = append(o.envs, envs...)
	return nil
}

func (o *memOutbox) FetchUndispatched(_ context.Context, limit int) ([]Envelope, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fetchErr != nil {
		return nil, o.fetchErr
	}
	var out []Envelope
	for _, env := range o.envs {
		if !o.dispatched[env.ID] {
			out = append(out, env)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (o *memOutbox) MarkDispatched(_ context.Context, eventID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatched[eventID] = true
	return nil
}

func (o *memOutbox) dispatchedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.dispatched)
}

// errDuplicateInboxEntry mirrors the unique violation a second insert of the
// same (handler, event) pair raises in the real store.
var errDuplicateInboxEntry = errors.New("duplicate inbox entry")

type memInbox struct {
	mu         sync.Mutex
	seen       map[string]bool
	staleReads int
}

func newMemInbox() *memInbox {
	return &memInbox{seen: make(map[string]bool)}
}

func (i *memInbox) Seen(_ context.Context, handlerName, eventID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.staleReads > 0 {
		i.staleReads--
		return false, nil
	}
	return i.seen[handlerName+"/"+eventID], nil
}

func (i *memInbox) MarkProcessed(_ context.Context, handlerName, eventID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := handlerName + "/" + eventID
	if i.seen[key] {
		return errDuplicateInboxEntry
	}
	i.seen[key] = true
	return nil
}

// passthroughUOW runs fn directly; rollback semantics are covered by the
// postgres implementation.
type passthroughUOW struct{}

func (passthroughUOW) ExecuteInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingHandler struct {
	name  string
	mu    sync.Mutex
	calls []string
	err   error
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(_ context.Context, env Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.calls = append(h.calls, env.ID)
	return nil
}

func (h *recordingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// --- Helpers ---

func testEnvelope(id, typ string) Envelope {
	return Envelope{
		ID:         id,
		Type:       typ,
		CartID:     "cart-1",
		Payload:    []byte(`{}`),
		OccurredAt: time.Now().UTC(),
	}
}

// --- Wrap ---

func TestWrapAll(t *testing.T) {
	c := teamcart.New("host", "Alice", "rest-1", time.Hour)
	require.NoError(t, c.MarkAsExpired())

	envs, err := WrapAll(c.DrainEvents())
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, teamcart.EventTypeExpired, envs[0].Type)
	assert.Equal(t, c.ID, envs[0].CartID)
	assert.NotEmpty(t, envs[0].ID)
	assert.Contains(t, string(envs[0].Payload), c.ID)
}

// --- Idempotent handler ---

func TestIdempotent_ProcessesOnce(t *testing.T) {
	inbox := newMemInbox()
	var calls int
	h := Idempotent("test-handler", inbox, passthroughUOW{}, func(_ context.Context, _ Envelope) error {
		calls++
		return nil
	})

	env := testEnvelope("evt-1", "teamcart.updated")
	require.NoError(t, h.Handle(context.Background(), env))
	require.NoError(t, h.Handle(context.Background(), env))
	require.NoError(t, h.Handle(context.Background(), env))

	assert.Equal(t, 1, calls)
}

func TestIdempotent_FailureLeavesInboxUnmarked(t *testing.T) {
	inbox := newMemInbox()
	var calls int
	h := Idempotent("test-handler", inbox, passthroughUOW{}, func(_ context.Context, _ Envelope) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})

	env := testEnvelope("evt-1", "teamcart.updated")
	require.Error(t, h.Handle(context.Background(), env))

	// Retry succeeds and only then dedups further deliveries.
	require.NoError(t, h.Handle(context.Background(), env))
	require.NoError(t, h.Handle(context.Background(), env))
	assert.Equal(t, 2, calls)
}

func TestIdempotent_RacingDeliveryFailsOnDuplicateMark(t *testing.T) {
	inbox := newMemInbox()
	// Both deliveries read the inbox before either has committed its mark.
	inbox.staleReads = 2

	var calls int
	h := Idempotent("test-handler", inbox, passthroughUOW{}, func(_ context.Context, _ Envelope) error {
		calls++
		return nil
	})

	env := testEnvelope("evt-1", "teamcart.updated")
	require.NoError(t, h.Handle(context.Background(), env))

	// The second delivery's mark hits the existing entry and the whole
	// handling attempt fails, so its transaction never commits.
	assert.ErrorIs(t, h.Handle(context.Background(), env), errDuplicateInboxEntry)

	// Redelivery after the first commit dedups cleanly.
	require.NoError(t, h.Handle(context.Background(), env))
	assert.Equal(t, 2, calls)
}

func TestIdempotent_DistinctHandlersProcessIndependently(t *testing.T) {
	inbox := newMemInbox()
	var a, b int
	ha := Idempotent("handler-a", inbox, passthroughUOW{}, func(_ context.Context, _ Envelope) error {
		a++
		return nil
	})
	hb := Idempotent("handler-b", inbox, passthroughUOW{}, func(_ context.Context, _ Envelope) error {
		b++
		return nil
	})

	env := testEnvelope("evt-1", "teamcart.updated")
	require.NoError(t, ha.Handle(context.Background(), env))
	require.NoError(t, hb.Handle(context.Background(), env))

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

// --- Dispatcher ---

func TestDispatcher_DeliversAndMarks(t *testing.T) {
	outbox := newMemOutbox(
		testEnvelope("evt-1", "teamcart.updated"),
		testEnvelope("evt-2", "teamcart.locked"),
	)
	h := &recordingHandler{name: "rec"}

	d := NewDispatcher(DispatcherConfig{BatchSize: 10}, outbox)
	d.Register(h)
	d.dispatchBatch(context.Background())

	assert.Equal(t, 2, h.callCount())
	assert.Equal(t, 2, outbox.dispatchedCount())
}

func TestDispatcher_TypeFiltering(t *testing.T) {
	outbox := newMemOutbox(
		testEnvelope("evt-1", "teamcart.updated"),
		testEnvelope("evt-2", "teamcart.locked"),
	)
	updates := &recordingHandler{name: "updates-only"}
	all := &recordingHandler{name: "catch-all"}

	d := NewDispatcher(DispatcherConfig{BatchSize: 10}, outbox)
	d.Register(updates, "teamcart.updated")
	d.Register(all)
	d.dispatchBatch(context.Background())

	assert.Equal(t, 1, updates.callCount())
	assert.Equal(t, 2, all.callCount())
}

func TestDispatcher_FailedHandlerKeepsEventUndispatched(t *testing.T) {
	outbox := newMemOutbox(testEnvelope("evt-1", "teamcart.updated"))
	failing := &recordingHandler{name: "failing", err: errors.New("boom")}

	d := NewDispatcher(DispatcherConfig{BatchSize: 10}, outbox)
	d.Register(failing)
	d.dispatchBatch(context.Background())

	assert.Equal(t, 0, outbox.dispatchedCount())

	// Once the handler recovers, the event is redelivered and marked.
	failing.err = nil
	d.dispatchBatch(context.Background())
	assert.Equal(t, 1, outbox.dispatchedCount())
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	outbox := newMemOutbox(testEnvelope("evt-1", "teamcart.updated"))
	h := &recordingHandler{name: "rec"}

	d := NewDispatcher(DispatcherConfig{Tick: 5 * time.Millisecond, BatchSize: 10}, outbox)
	d.Register(h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return outbox.dispatchedCount() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}
