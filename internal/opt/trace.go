package opt

import (
	"fmt"

	"jobassign/internal/model"
)

// Trace is the append-only progress record of a run: the utility of the
// accepted solution at epoch 0 and at every checkpoint.
type Trace struct {
	points []model.TracePoint
}

func newTrace(capacity int) *Trace {
	return &Trace{points: make([]model.TracePoint, 0, capacity)}
}

// Record appends a point. Epochs must strictly increase.
func (t *Trace) Record(epoch int, utility float64) error {
	if n := len(t.points); n > 0 && epoch <= t.points[n-1].Epoch {
		return fmt.Errorf("trace epoch %d after %d", epoch, t.points[n-1].Epoch)
	}
	t.points = append(t.points, model.TracePoint{Epoch: epoch, Utility: utility})
	return nil
}

// Len is the number of recorded points.
func (t *Trace) Len() int { return len(t.points) }

// Points returns a copy of the recorded points in epoch order.
func (t *Trace) Points() []model.TracePoint {
	return append([]model.TracePoint(nil), t.points...)
}

// Last returns the most recent point.
func (t *Trace) Last() (model.TracePoint, bool) {
	if len(t.points) == 0 {
		return model.TracePoint{}, false
	}
	return t.points[len(t.points)-1], true
}
