package saga_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cassiomorais/framelink/pkg/saga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openSaga mirrors the frame-open sequence: open the child context, arm the
// bus listeners, start the close watcher. Each step logs into trail.
func openSaga(trail *[]string, failAt string) *saga.Saga {
	step := func(name string) saga.Step {
		return saga.Step{
			Name: name,
			Execute: func(ctx context.Context) error {
				if name == failAt {
					return errors.New(name + " failed")
				}
				*trail = append(*trail, name)
				return nil
			},
			Compensate: func(ctx context.Context) error {
				*trail = append(*trail, "undo "+name)
				return nil
			},
		}
	}
	return saga.New("frame-open").
		AddStep(step("open-child-context")).
		AddStep(step("arm-bus-listeners")).
		AddStep(step("start-close-watcher"))
}

func TestSaga_OpenSequenceSucceeds(t *testing.T) {
	var trail []string

	failedStep, err := openSaga(&trail, "").Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1, failedStep)
	assert.Equal(t, []string{"open-child-context", "arm-bus-listeners", "start-close-watcher"}, trail)
}

func TestSaga_ListenerFailureClosesChildContext(t *testing.T) {
	var trail []string

	failedStep, err := openSaga(&trail, "arm-bus-listeners").Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, failedStep)
	assert.Contains(t, err.Error(), "arm-bus-listeners failed")
	// The half-opened child context is rolled back; the watcher never started.
	assert.Equal(t, []string{"open-child-context", "undo open-child-context"}, trail)
}

func TestSaga_WatcherFailureCompensatesInReverse(t *testing.T) {
	var trail []string

	failedStep, err := openSaga(&trail, "start-close-watcher").Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, failedStep)
	assert.Equal(t, []string{
		"open-child-context", "arm-bus-listeners",
		"undo arm-bus-listeners", "undo open-child-context",
	}, trail)
}

func TestSaga_NoSteps(t *testing.T) {
	failedStep, err := saga.New("empty").Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1, failedStep)
}

func TestSaga_CompensationErrorsAreCollected(t *testing.T) {
	s := saga.New("frame-open").
		AddStep(saga.Step{
			Name:       "open-child-context",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { return errors.New("window already gone") },
		}).
		AddStep(saga.Step{
			Name:       "arm-bus-listeners",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { return errors.New("bus torn down") },
		}).
		AddStep(saga.Step{
			Name:    "start-close-watcher",
			Execute: func(ctx context.Context) error { return errors.New("watcher failed") },
		})

	_, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window already gone")
	assert.Contains(t, err.Error(), "bus torn down")
}

func TestSaga_NilCompensateIsSkipped(t *testing.T) {
	s := saga.New("frame-open").
		AddStep(saga.Step{
			Name:    "open-child-context",
			Execute: func(ctx context.Context) error { return nil },
		}).
		AddStep(saga.Step{
			Name:    "arm-bus-listeners",
			Execute: func(ctx context.Context) error { return errors.New("no transport") },
		})

	failedStep, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, failedStep)
}
