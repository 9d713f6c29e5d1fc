// Package syncer keeps the appointment store consistent with the remote
// source of truth by polling an opaque "last changed" signal and triggering
// an incremental store refresh when it moves. A full page reload is never
// forced: the store snapshot is the unit of truth.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"arvera/internal/booking"
	"arvera/internal/metrics"
)

// UpdateSignal exposes the remote change-detection token.
type UpdateSignal interface {
	CheckUpdate(ctx context.Context) (string, error)
}

// ReloadFunc refreshes the store for the currently visible range.
type ReloadFunc func(ctx context.Context) error

// Controller polls the update signal and reconciles the store. Polling is
// gated on document visibility: a hidden tab stops checking, and becoming
// visible again runs an immediate check.
type Controller struct {
	signal   UpdateSignal
	reload   ReloadFunc
	interval time.Duration
	logger   *zerolog.Logger

	mu        sync.Mutex
	lastToken string
	visible   bool
	busy      bool

	intervalCh chan time.Duration
}

// New creates a controller. The interval defaults to 10 seconds when
// non-positive.
func New(signal UpdateSignal, reload ReloadFunc, interval time.Duration, logger *zerolog.Logger) *Controller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Controller{
		signal:     signal,
		reload:     reload,
		interval:   interval,
		logger:     logger,
		visible:    true,
		intervalCh: make(chan time.Duration, 1),
	}
}

// SetInterval changes the polling cadence. A running loop picks the new
// interval up on its next iteration; non-positive values are ignored.
func (c *Controller) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.mu.Lock()
	changed := interval != c.interval
	c.interval = interval
	c.mu.Unlock()
	if !changed {
		return
	}
	select {
	case c.intervalCh <- interval:
	default:
	}
}

// SetVisible updates the visibility gate. Transitioning to visible runs an
// immediate check so a change that happened while hidden is picked up
// without waiting for the next tick.
func (c *Controller) SetVisible(ctx context.Context, visible bool) {
	c.mu.Lock()
	wasVisible := c.visible
	c.visible = visible
	c.mu.Unlock()

	if visible && !wasVisible {
		c.Tick(ctx)
	}
}

// Tick performs one poll cycle: fetch the signal, compare, reload on
// change. The known token advances only after a successful reload, so a
// failed or skipped reload is retried on the next tick. A tick arriving
// while another cycle is still in flight is debounced; the busy flag is
// claimed in the same critical section as the check, so two overlapping
// ticks can never both reach the signal fetch.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	if !c.visible {
		c.mu.Unlock()
		metrics.IncSyncCheck("hidden")
		return
	}
	if c.busy {
		c.mu.Unlock()
		metrics.IncSyncCheck("busy")
		return
	}
	c.busy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	token, err := c.signal.CheckUpdate(ctx)
	if err != nil {
		metrics.IncSyncCheck("error")
		c.logger.Warn().Err(err).Msg("update-signal check failed")
		return
	}

	c.mu.Lock()
	if token == c.lastToken {
		c.mu.Unlock()
		metrics.IncSyncCheck("unchanged")
		return
	}
	c.mu.Unlock()

	metrics.IncSyncCheck("changed")
	err = c.reload(ctx)

	c.mu.Lock()
	if err == nil {
		c.lastToken = token
	}
	c.mu.Unlock()

	switch {
	case err == nil:
		metrics.IncStoreReload("ok")
		c.logger.Info().Str("token", token).Msg("remote change detected, store refreshed")
	case errors.Is(err, booking.ErrSuperseded):
		metrics.IncStoreReload("superseded")
	default:
		metrics.IncStoreReload("error")
		c.logger.Warn().Err(err).Msg("store refresh failed, will retry on next tick")
	}
}

// Run polls until the context is cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	interval := c.interval
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case interval = <-c.intervalCh:
			ticker.Reset(interval)
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// LastToken returns the last token a successful reload was reconciled to.
func (c *Controller) LastToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastToken
}
