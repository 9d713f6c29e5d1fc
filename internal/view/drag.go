package view

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"arvera/internal/booking"
	"arvera/internal/schedule"
)

// DragState is the drag-and-drop phase. Transitions: idle -> armed ->
// dragging -> dropped -> idle; Cancel returns to idle from any phase.
type DragState int

const (
	DragIdle DragState = iota
	DragArmed
	DragDragging
	DragDropped
)

var errBadTransition = errors.New("invalid drag transition")

// Mover commits a moved appointment to the server.
type Mover interface {
	UpdateAppointmentTimes(ctx context.Context, id string, start, end time.Time) error
}

// DragController models the move gesture independently of any pointer
// handling. The scheduling core is untouched until Drop.
type DragController struct {
	store  *booking.Store
	mover  Mover
	logger *zerolog.Logger

	state  DragState
	apptID string
}

// NewDragController creates an idle controller.
func NewDragController(store *booking.Store, mover Mover, logger *zerolog.Logger) *DragController {
	return &DragController{store: store, mover: mover, logger: logger}
}

// State returns the current phase.
func (d *DragController) State() DragState {
	return d.state
}

// Arm marks an appointment as pressed but not yet moving (long-press).
func (d *DragController) Arm(appointmentID string) error {
	if d.state != DragIdle {
		return fmt.Errorf("%w: arm from state %d", errBadTransition, d.state)
	}
	if _, ok := d.store.Get(appointmentID); !ok {
		return booking.ErrNotFound
	}
	d.state = DragArmed
	d.apptID = appointmentID
	return nil
}

// Begin promotes an armed press into an active drag.
func (d *DragController) Begin() error {
	if d.state != DragArmed {
		return fmt.Errorf("%w: begin from state %d", errBadTransition, d.state)
	}
	d.state = DragDragging
	return nil
}

// Cancel aborts the gesture (pointer-cancel, escape) and returns to idle.
// Nothing was mutated, so there is nothing to roll back.
func (d *DragController) Cancel() {
	d.state = DragIdle
	d.apptID = ""
}

// Drop releases the dragged appointment onto a target slot. The move is
// applied optimistically, committed to the server, and confirmed or rolled
// back with the round-trip result. A drop is never silently cancelled: it
// completes or surfaces an error with the local state restored.
func (d *DragController) Drop(ctx context.Context, target schedule.Slot) error {
	if d.state != DragDragging {
		return fmt.Errorf("%w: drop from state %d", errBadTransition, d.state)
	}
	d.state = DragDropped
	id := d.apptID
	defer d.Cancel()

	return CommitMove(ctx, d.store, d.mover, d.logger, id, target)
}

// CommitMove applies a move optimistically, commits it to the server, and
// confirms or rolls back with the round-trip result. Shared by the drag
// controller and the move endpoint.
func CommitMove(ctx context.Context, store *booking.Store, mover Mover, logger *zerolog.Logger, id string, target schedule.Slot) error {
	token, err := store.ApplyOptimisticMove(id, target.StartInstant.UTC(), target.EndInstant.UTC())
	if err != nil {
		return err
	}

	if err := mover.UpdateAppointmentTimes(ctx, id, target.StartInstant, target.EndInstant); err != nil {
		store.Rollback(token)
		logger.Warn().Err(err).Str("id", id).Msg("move rejected, rolled back")
		return fmt.Errorf("move appointment %s: %w", id, err)
	}

	store.Confirm(token)
	return nil
}
