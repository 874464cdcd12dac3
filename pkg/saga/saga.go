// Package saga runs a sequence of setup steps with automatic compensation:
// when a later step fails, the completed steps are rolled back in reverse
// order. The frame service uses it to guarantee a half-opened child context
// never leaks when arming a flow fails partway through.
package saga

import (
	"context"
	"errors"
	"fmt"
)

// Step is one unit of work with an optional compensation.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga orchestrates a series of steps.
type Saga struct {
	name  string
	steps []Step
}

// New creates a saga with the given name.
func New(name string) *Saga {
	return &Saga{name: name}
}

// AddStep appends a step.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs all steps in order. On failure it compensates completed steps
// in reverse order and returns the index of the failed step; on success it
// returns -1.
func (s *Saga) Execute(ctx context.Context) (failedStep int, err error) {
	var completed []Step

	for i, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			if compErr := compensate(ctx, completed); compErr != nil {
				return i, fmt.Errorf("saga %s: step %q failed (%w), compensation also failed: %v", s.name, step.Name, err, compErr)
			}
			return i, fmt.Errorf("saga %s: step %q failed: %w", s.name, step.Name, err)
		}
		completed = append(completed, step)
	}

	return -1, nil
}

func compensate(ctx context.Context, completed []Step) error {
	var errs []error
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate step %q: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
