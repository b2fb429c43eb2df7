package opt

import "errors"

// ErrConfiguration marks inputs the optimizer refuses to run with: a
// non-positive iteration count, a single worker for a non-empty job set,
// workers without skills, duplicate ids.
var ErrConfiguration = errors.New("optimizer configuration")

// ErrInvalidAssignment is returned when scoring an assignment that names
// unknown workers or jobs, or lists a job more than once.
var ErrInvalidAssignment = errors.New("invalid assignment")
