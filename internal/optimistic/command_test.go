package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echogram/echogram/pkg/apperrors"
)

func TestRunSuccessAppliesThenReconciles(t *testing.T) {
	var trace []string
	err := Run(context.Background(), Command{
		Name:      "test",
		Apply:     func() { trace = append(trace, "apply") },
		Remote:    func(context.Context) error { trace = append(trace, "remote"); return nil },
		Reconcile: func() { trace = append(trace, "reconcile") },
		Rollback:  func() { trace = append(trace, "rollback") },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"apply", "remote", "reconcile"}, trace)
}

func TestRunFailureRollsBack(t *testing.T) {
	var trace []string
	err := Run(context.Background(), Command{
		Name:      "test",
		Apply:     func() { trace = append(trace, "apply") },
		Remote:    func(context.Context) error { return errors.New("boom") },
		Reconcile: func() { trace = append(trace, "reconcile") },
		Rollback:  func() { trace = append(trace, "rollback") },
	})
	require.Error(t, err)
	assert.Equal(t, []string{"apply", "rollback"}, trace)
	assert.Equal(t, apperrors.CodeUnavailable, apperrors.CodeOf(err))
}

func TestRunPassesThroughCodedErrors(t *testing.T) {
	remoteErr := apperrors.FailedPrecondition("not connected")
	err := Run(context.Background(), Command{
		Name:   "test",
		Remote: func(context.Context) error { return remoteErr },
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
}

func TestRunToleratesNilHooks(t *testing.T) {
	err := Run(context.Background(), Command{
		Name:   "bare",
		Remote: func(context.Context) error { return nil },
	})
	assert.NoError(t, err)
}
