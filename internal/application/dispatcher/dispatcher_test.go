package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/procurehq/approval-engine/internal/domain/event"
	"go.uber.org/zap"
)

func newTestDispatcher() Dispatcher {
	return NewDispatcher(zap.NewNop())
}

func TestDispatcher_Dispatch(t *testing.T) {
	d := newTestDispatcher()

	var got *event.Event
	d.Subscribe(event.TypeRequestSubmitted, "recorder", func(ctx context.Context, evt *event.Event) error {
		got = evt
		return nil
	})

	evt := event.NewEvent(event.TypeRequestSubmitted, 1, "u-1", nil)
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}

	if got == nil || got.ID != evt.ID {
		t.Error("handler should receive the dispatched event")
	}
}

func TestDispatcher_DispatchOnlyMatchingType(t *testing.T) {
	d := newTestDispatcher()

	calls := 0
	d.Subscribe(event.TypeRequestRejected, "counter", func(ctx context.Context, evt *event.Event) error {
		calls++
		return nil
	})

	_ = d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestSubmitted, 1, "u-1", nil))
	if calls != 0 {
		t.Error("handler for a different event type must not run")
	}

	_ = d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestRejected, 1, "u-1", nil))
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

func TestDispatcher_DispatchReturnsHandlerError(t *testing.T) {
	d := newTestDispatcher()

	wantErr := errors.New("sink unavailable")
	d.Subscribe(event.TypeRequestApproved, "failing", func(ctx context.Context, evt *event.Event) error {
		return wantErr
	})

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestApproved, 1, "u-1", nil))
	if !errors.Is(err, wantErr) {
		t.Errorf("Dispatch() error = %v, want wrapped %v", err, wantErr)
	}
}

func TestDispatcher_PanicRecovery(t *testing.T) {
	d := newTestDispatcher()

	d.Subscribe(event.TypeRequestApproved, "panicking", func(ctx context.Context, evt *event.Event) error {
		panic("boom")
	})

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestApproved, 1, "u-1", nil))
	if err == nil {
		t.Fatal("Dispatch() should surface the recovered panic as an error")
	}
}

func TestDispatcher_DispatchAsync(t *testing.T) {
	d := newTestDispatcher()

	var calls atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)

	handler := func(ctx context.Context, evt *event.Event) error {
		defer wg.Done()
		calls.Add(1)
		return nil
	}

	d.Subscribe(event.TypeRequestCompleted, "first", handler)
	d.Subscribe(event.TypeRequestCompleted, "second", handler)

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeRequestCompleted, 1, "u-1", nil))
	wg.Wait()

	if calls.Load() != 2 {
		t.Errorf("async handler calls = %d, want 2", calls.Load())
	}
}

func TestDispatcher_DispatchAsyncOutlivesCaller(t *testing.T) {
	d := newTestDispatcher()

	ctxErr := make(chan error, 1)
	d.Subscribe(event.TypeRequestApproved, "recorder", func(ctx context.Context, evt *event.Event) error {
		ctxErr <- ctx.Err()
		return nil
	})

	// Cancel before dispatching, the way an HTTP request context dies the
	// moment the handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.DispatchAsync(ctx, event.NewEvent(event.TypeRequestApproved, 1, "u-1", nil))

	if err := <-ctxErr; err != nil {
		t.Errorf("async handler context error = %v, want nil", err)
	}
}

func TestDispatcher_CloseWaitsAndRejects(t *testing.T) {
	d := newTestDispatcher()

	var done atomic.Bool
	d.Subscribe(event.TypeRequestCompleted, "slow", func(ctx context.Context, evt *event.Event) error {
		done.Store(true)
		return nil
	})

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeRequestCompleted, 1, "u-1", nil))

	if err := d.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if !done.Load() {
		t.Error("Close() should wait for in-flight async handlers")
	}

	if err := d.Close(); err == nil {
		t.Error("second Close() should fail")
	}
	if err := d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestCompleted, 1, "u-1", nil)); err == nil {
		t.Error("Dispatch() after Close() should fail")
	}
}
