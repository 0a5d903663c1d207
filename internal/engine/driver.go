package engine

import (
	"context"
	"errors"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

// Start launches a driver for every live session and the idle reaper. New
// sessions get a driver as they are created. Call Stop to shut down.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.ctx, e.cancel = context.WithCancel(ctx)
	runCtx := e.ctx
	e.mu.Unlock()

	for _, sess := range e.store.List() {
		e.startDriver(sess.ID)
	}

	if e.config.IdleTimeout > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.reapIdleSessions(runCtx)
		}()
	}
	e.logger.Info("engine started", "tick_interval", e.config.TickInterval, "idle_timeout", e.config.IdleTimeout)
}

// Stop cancels all background work and waits for goroutines to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

// startDriver runs a driver goroutine for the session if the engine is
// running and none exists yet.
func (e *Engine) startDriver(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil || e.ctx.Err() != nil {
		return
	}
	if _, ok := e.drivers[id]; ok {
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.drivers[id] = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.forgetDriver(id)
		e.drive(ctx, id)
	}()
}

func (e *Engine) stopDriver(id string) {
	e.mu.Lock()
	cancel, ok := e.drivers[id]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Engine) forgetDriver(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.drivers[id]; ok {
		cancel()
		delete(e.drivers, id)
	}
}

// drive ticks one session until it completes, disappears or becomes unusable.
// Ticks of a session never overlap because they all run on this goroutine.
func (e *Engine) drive(ctx context.Context, id string) {
	logger := e.logger.With("session_id", id)
	ticker := e.clock.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		action, err := e.Tick(ctx, id, e.clock.Now())
		if err != nil {
			if !errors.Is(err, model.ErrSessionNotFound) {
				logger.Error("tick failed, stopping driver", "error", err)
			}
			return
		}
		switch action {
		case model.ActionFinalize:
			if _, err := e.Finalize(ctx, id); err != nil && !errors.Is(err, model.ErrFinalizeInFlight) {
				logger.Error("finalize failed", "error", err)
				if errors.Is(err, model.ErrSessionUnusable) || errors.Is(err, model.ErrSessionNotFound) {
					return
				}
			}
		case model.ActionTerminate:
			logger.Debug("driver finished")
			return
		}
	}
}

// reapIdleSessions deletes sessions that have not changed for IdleTimeout.
// Sessions with a finalize or save in flight are skipped.
func (e *Engine) reapIdleSessions(ctx context.Context) {
	ticker := e.clock.NewTicker(e.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			e.reapOnce()
		}
	}
}

func (e *Engine) reapOnce() int {
	now := e.clock.Now()
	reaped := 0
	for _, sess := range e.store.List() {
		if sess.FinalizeInFlight || sess.SaveInFlight {
			continue
		}
		idle := now.Sub(sess.UpdatedAt)
		if idle <= e.config.IdleTimeout {
			continue
		}
		e.logger.Info("reaping idle session", "session_id", sess.ID, "phase", sess.Phase, "idle", idle)
		e.emit(sess.ID, model.EventError, "session expired after inactivity", nil)
		e.removeSession(sess.ID)
		e.metrics.SessionsExpired.Inc()
		reaped++
	}
	return reaped
}
