package future

import "sync"

// AggregateError carries every child failure of an AggregatePromise that
// did not succeed.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := "future: aggregate failure ("
	for i, err := range e.Errors {
		if i > 0 {
			msg += "; "
		}
		msg += err.Error()
	}
	return msg + ")"
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// AggregatePromise completes once every child Future has, succeeding
// iff all children succeeded, else failing with an *AggregateError
// listing every non-success reason (per spec: "Success iff all
// succeeded, else Aggregate(failures)"). Grounded on the teacher's
// JS.AllSettled combinator (eventloop/promise.go), adapted from a
// JS-style settled-results array to this binary success/aggregate-error
// shape.
func AggregatePromise(children []Future, executor Executor) Future {
	agg := &promise{state: Pending}

	if len(children) == 0 {
		agg.TrySucceed(nil)
		return agg
	}

	var (
		mu        sync.Mutex
		remaining = len(children)
		failures  []error
	)

	for _, child := range children {
		child.OnComplete(func(f Future) {
			mu.Lock()
			state := f.State()
			if state != Succeeded {
				_, err := f.Result()
				if err == nil {
					err = ErrAlreadyCanceled
				}
				failures = append(failures, err)
			}
			remaining--
			done := remaining == 0
			fails := failures
			mu.Unlock()

			if done {
				if len(fails) == 0 {
					agg.TrySucceed(nil)
				} else {
					agg.TryFail(&AggregateError{Errors: fails})
				}
			}
		}, executor)
	}

	return agg
}
