// Package domain holds the pure types shared by the coordinator and worker.
// A Task is one sub-interval of the integration domain plus its sampling step:
// partition → dispatch → integrate → sum.
package domain

import (
	"fmt"
	"math"
)

// Task is a unit of distributed work. Two tasks with equal fields are
// interchangeable; a Task has no identity beyond its values.
type Task struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Step  float64 `json:"step"`
}

// Width returns the length of the task's sub-interval.
func (t Task) Width() float64 {
	return t.End - t.Start
}

// Validate reports whether the task can be integrated in finite time.
func (t Task) Validate() error {
	if !finite(t.Start) || !finite(t.End) {
		return fmt.Errorf("%w: bounds [%v, %v)", ErrInvalidRange, t.Start, t.End)
	}
	if !finite(t.Step) || t.Step <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidStep, t.Step)
	}
	return nil
}

// String renders the task as a half-open interval.
func (t Task) String() string {
	return fmt.Sprintf("[%g, %g) step %g", t.Start, t.End, t.Step)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
