package pipeline

import "errors"

// ErrHandlerNameConflict is returned when a handler is added under a
// name already present in the pipeline.
var ErrHandlerNameConflict = errors.New("pipeline: handler name conflict")

// ErrHandlerNotFound is returned by Remove/Replace/AddBefore/AddAfter
// when the referenced name isn't present.
var ErrHandlerNotFound = errors.New("pipeline: handler not found")

// ErrSentinelMutation is returned when a caller attempts to remove or
// replace the Head or Tail sentinel.
var ErrSentinelMutation = errors.New("pipeline: cannot mutate sentinel handler")
