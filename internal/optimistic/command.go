// Package optimistic generalizes the local-first mutation pattern so
// the rollback contract cannot be forgotten for a new action type:
// apply the local change, issue the remote write, then reconcile with
// the confirmed result or roll back to the pre-mutation snapshot.
package optimistic

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/echogram/echogram/pkg/apperrors"
)

// Command describes one user-initiated mutation.
type Command struct {
	// Name tags log lines and error messages.
	Name string

	// Apply performs the synchronous local-first state change.
	Apply func()

	// Remote issues the authoritative write.
	Remote func(ctx context.Context) error

	// Reconcile folds server-confirmed identifiers/values back into
	// local state after a successful remote write. Optional.
	Reconcile func()

	// Rollback restores the pre-mutation snapshot after a failed
	// remote write.
	Rollback func()
}

// Run executes the command. On remote failure the local state is rolled
// back and the returned error is user-visible; writes are never
// silently retried, to avoid duplicate side effects. Confirmed server
// state observed later always supersedes whatever Apply installed.
func Run(ctx context.Context, cmd Command) error {
	if cmd.Apply != nil {
		cmd.Apply()
	}

	if err := cmd.Remote(ctx); err != nil {
		if cmd.Rollback != nil {
			cmd.Rollback()
		}
		log.Debug().Err(err).Str("command", cmd.Name).Msg("remote write failed, rolled back")
		if apperrors.CodeOf(err) != apperrors.CodeUnknown {
			return err
		}
		return apperrors.Wrap(apperrors.CodeUnavailable, cmd.Name+" failed", err)
	}

	if cmd.Reconcile != nil {
		cmd.Reconcile()
	}
	return nil
}
