package future

import (
	"errors"
	"sync"
	"testing"
)

type inlineExecutor struct{ calls int }

func (e *inlineExecutor) Submit(fn func()) error {
	e.calls++
	fn()
	return nil
}

type rejectingExecutor struct{}

func (rejectingExecutor) Submit(func()) error {
	return errors.New("executor closed")
}

func TestPromise_SettlesExactlyOnce(t *testing.T) {
	p := New()

	if !p.TrySucceed(1) {
		t.Fatalf("first TrySucceed should win")
	}
	if p.TrySucceed(2) {
		t.Fatalf("second TrySucceed should lose")
	}
	if p.TryFail(errors.New("x")) {
		t.Fatalf("TryFail after settle should lose")
	}
	if p.TryCancel() {
		t.Fatalf("TryCancel after settle should lose")
	}

	v, err := p.Result()
	if v != 1 || err != nil {
		t.Fatalf("Result = (%v, %v), want (1, nil)", v, err)
	}
	if p.State() != Succeeded {
		t.Fatalf("State = %v, want Succeeded", p.State())
	}
}

func TestPromise_OnCompleteBeforeSettle(t *testing.T) {
	p := New()
	exec := &inlineExecutor{}

	var got Future
	var wg sync.WaitGroup
	wg.Add(1)
	p.OnComplete(func(f Future) {
		got = f
		wg.Done()
	}, exec)

	p.TrySucceed("done")
	wg.Wait()

	if exec.calls != 1 {
		t.Fatalf("executor should run exactly once, ran %d", exec.calls)
	}
	v, _ := got.Result()
	if v != "done" {
		t.Fatalf("continuation saw %v, want done", v)
	}
}

func TestPromise_OnCompleteAfterSettle(t *testing.T) {
	p := New()
	p.TryFail(errors.New("boom"))

	exec := &inlineExecutor{}
	fired := false
	p.OnComplete(func(f Future) {
		fired = true
		_, err := f.Result()
		if err == nil || err.Error() != "boom" {
			t.Fatalf("unexpected error %v", err)
		}
	}, exec)

	if !fired {
		t.Fatalf("continuation registered after settle should fire immediately")
	}
	if exec.calls != 1 {
		t.Fatalf("executor should run exactly once, ran %d", exec.calls)
	}
}

func TestPromise_OnCompleteRunsInlineWhenExecutorRejects(t *testing.T) {
	p := New()
	fired := false
	p.OnComplete(func(Future) { fired = true }, rejectingExecutor{})
	p.TrySucceed(nil)
	if !fired {
		t.Fatalf("continuation must still fire when the executor rejects submission")
	}
}

func TestAggregatePromise_AllSucceed(t *testing.T) {
	a, b := New(), New()
	agg := AggregatePromise([]Future{a, b}, nil)

	a.TrySucceed(1)
	if agg.State() != Pending {
		t.Fatalf("aggregate should stay pending until all children settle")
	}
	b.TrySucceed(2)

	if agg.State() != Succeeded {
		t.Fatalf("State = %v, want Succeeded", agg.State())
	}
}

func TestAggregatePromise_OneFails(t *testing.T) {
	a, b := New(), New()
	agg := AggregatePromise([]Future{a, b}, nil)

	a.TrySucceed(1)
	b.TryFail(errors.New("child failed"))

	if agg.State() != Failed {
		t.Fatalf("State = %v, want Failed", agg.State())
	}
	_, err := agg.Result()
	var aggErr *AggregateError
	if !errors.As(err, &aggErr) || len(aggErr.Errors) != 1 {
		t.Fatalf("expected single-error AggregateError, got %v", err)
	}
}

func TestAggregatePromise_Empty(t *testing.T) {
	agg := AggregatePromise(nil, nil)
	if agg.State() != Succeeded {
		t.Fatalf("empty aggregate should succeed immediately, got %v", agg.State())
	}
}

func TestScheduledHandle_CancelIsExactlyOnce(t *testing.T) {
	h := NewScheduledHandle(New())
	if !h.Cancel() {
		t.Fatalf("first Cancel should win")
	}
	if h.Cancel() {
		t.Fatalf("second Cancel should lose")
	}
	if !h.IsCanceled() {
		t.Fatalf("IsCanceled should report true after Cancel")
	}
}
