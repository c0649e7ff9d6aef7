package rm

import (
	"context"
	"fmt"

	"github.com/cuemby/ohmsrm/pkg/events"
)

// GrantLeadership implements LeadershipListener. It is invoked by the
// election backend on its own goroutine; per §4.3 the actual transition is
// deferred until any in-flight clear-state future completes, then runs
// unfenced on the actor loop.
func (e *Endpoint) GrantLeadership(sessionID string) {
	e.awaitClearStateThen(func() {
		e.runUnfenced(func(ctx context.Context) {
			e.doGrantLeadership(ctx, sessionID)
		})
	})
}

// awaitClearStateThen runs fn (itself responsible for getting back onto the
// actor loop) after the clear-state future outstanding at call time
// completes, or immediately if none is outstanding.
func (e *Endpoint) awaitClearStateThen(fn func()) {
	done := e.clearStateDone
	if done == nil {
		fn()
		return
	}
	go func() {
		<-done
		fn()
	}()
}

func (e *Endpoint) doGrantLeadership(ctx context.Context, sessionID string) {
	if !e.cfg.Election.HasLeadership(sessionID) {
		e.logger.Debug().Str("session", sessionID).Msg("grant arrived for a session we no longer hold, ignoring")
		return
	}

	if e.fencingToken.Valid() {
		// We were previously leader (a flicker that revoked and re-granted
		// without an intervening Stop) — run a full clear-state first, then
		// retry this same grant once it finishes.
		e.clearStateInternal(ctx)
		e.awaitClearStateThen(func() {
			e.runUnfenced(func(ctx context.Context) { e.doGrantLeadership(ctx, sessionID) })
		})
		return
	}

	e.sessionID = sessionID
	e.fencingToken = NewFencingToken()
	token := e.fencingToken

	e.startServicesOnLeadership()
	e.publish(events.EventLeadershipGranted, "acquired leadership", map[string]string{"session": sessionID})

	go func() {
		if err := e.cfg.Framework.PrepareLeadershipAsync(ctx); err != nil {
			e.OnFatalError(fmt.Errorf("prepareLeadershipAsync: %w", err))
			return
		}
		// Confirmation happens only after monitors and the slot manager are
		// ready to accept traffic, so no registration can race ahead of
		// startServicesOnLeadership (§4.3 rationale).
		if err := e.cfg.Election.ConfirmLeadership(sessionID, token); err != nil {
			e.OnFatalError(fmt.Errorf("confirm leadership: %w", err))
		}
	}()
}

// startServicesOnLeadership creates fresh heartbeat monitors and starts the
// slot manager under the new fencing token (§4.3 step c).
func (e *Endpoint) startServicesOnLeadership() {
	e.taskMonitor = e.cfg.HeartbeatFactory.NewTaskManagerMonitor(e)
	e.jobMonitor = e.cfg.HeartbeatFactory.NewJobManagerMonitor(e)
	e.cfg.SlotManager.Start(e.fencingToken, e)
	e.logger.Info().Str("session", e.sessionID).Msg("resource manager started services on leadership")
}

// RevokeLeadership implements LeadershipListener. Runs unfenced: revocation
// must be able to clear the fencing token even while the old token is being
// checked by in-flight RPCs (§4.3, §4.8).
func (e *Endpoint) RevokeLeadership() {
	e.runUnfenced(func(ctx context.Context) {
		e.doRevokeLeadership(ctx)
	})
}

func (e *Endpoint) doRevokeLeadership(ctx context.Context) {
	e.logger.Info().Str("session", e.sessionID).Msg("revoking leadership")
	e.publish(events.EventLeadershipRevoked, "lost leadership", map[string]string{"session": e.sessionID})
	e.clearStateInternal(ctx)

	if e.cfg.SlotManager != nil {
		e.cfg.SlotManager.Suspend()
	}
	if e.taskMonitor != nil {
		e.taskMonitor.Stop()
		e.taskMonitor = nil
	}
	if e.jobMonitor != nil {
		e.jobMonitor.Stop()
		e.jobMonitor = nil
	}

	e.fencingToken = ""
	e.sessionID = ""
}

// clearStateInternal implements §4.8's clearStateInternal: empty the
// registration tables, clear the job-leader-id service, and kick off a new
// subclass clearStateAsync future so the next grant-leadership can await it.
func (e *Endpoint) clearStateInternal(ctx context.Context) {
	e.tables.clear()

	if err := e.cfg.JobLeaderID.Clear(); err != nil {
		e.OnFatalError(fmt.Errorf("clearing job-leader-id service: %w", err))
		return
	}

	done := make(chan struct{})
	e.clearStateDone = done
	go func() {
		defer close(done)
		if err := e.cfg.Framework.ClearStateAsync(ctx); err != nil {
			e.logger.Error().Err(err).Msg("clearStateAsync failed, continuing anyway")
		}
	}()
}

// OnFatalError implements LeadershipListener. A leader-election service
// error is always fatal (§4.3, §7).
func (e *Endpoint) OnFatalError(err error) {
	e.logger.Error().Err(err).Msg("fatal error")
	if e.cfg.FatalErrorHandler != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error().Interface("panic", r).Msg("fatal error handler itself panicked")
				}
			}()
			e.cfg.FatalErrorHandler.OnFatalError(err)
		}()
	}
}
