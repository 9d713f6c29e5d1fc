package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound means the appointment is not in the current snapshot.
	ErrNotFound = errors.New("appointment not found in store")
	// ErrSuperseded means a newer load started before this one landed; the
	// stale result was discarded and the snapshot belongs to the newer load.
	ErrSuperseded = errors.New("load superseded by a newer load")
	// ErrMovePending means the appointment already carries an unsettled
	// optimistic move; it must be confirmed or rolled back first.
	ErrMovePending = errors.New("appointment has an unsettled move")
)

// API is the slice of the remote booking collaborator the store needs.
type API interface {
	ListAppointments(ctx context.Context, rangeStart, rangeEnd time.Time) ([]Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
}

// MoveToken lets the caller settle an optimistic move once the server
// round-trip finishes.
type MoveToken struct {
	id        string
	prevStart time.Time
	prevEnd   time.Time
}

// Store is the in-memory cache of appointments for the visible range. It is
// the single source of truth for that range: a successful Load fully
// replaces the snapshot, a failed one leaves it untouched.
type Store struct {
	api    API
	logger *zerolog.Logger

	mu           sync.Mutex
	rangeStart   time.Time
	rangeEnd     time.Time
	appointments []*Appointment
	lastSyncedAt time.Time
	loadGen      uint64
	pending      map[string]MoveToken
}

// NewStore creates an empty store backed by the given collaborator.
func NewStore(api API, logger *zerolog.Logger) *Store {
	return &Store{
		api:     api,
		logger:  logger,
		pending: make(map[string]MoveToken),
	}
}

// Load fetches appointments for the half-open range [rangeStart, rangeEnd)
// and replaces the snapshot. On fetch failure the prior snapshot survives
// unchanged. When a newer Load started while this one was in flight the
// stale result is dropped and ErrSuperseded returned (latest wins).
// Pending optimistic moves are re-applied on top of the fresh snapshot so a
// reload landing mid-mutation cannot discard an unconfirmed change.
func (s *Store) Load(ctx context.Context, rangeStart, rangeEnd time.Time) error {
	s.mu.Lock()
	s.loadGen++
	gen := s.loadGen
	s.mu.Unlock()

	fetched, err := s.api.ListAppointments(ctx, rangeStart, rangeEnd)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.loadGen {
		return ErrSuperseded
	}

	replacement := make([]*Appointment, 0, len(fetched))
	for i := range fetched {
		a := fetched[i]
		if a.Start.Before(rangeStart) || !a.Start.Before(rangeEnd) {
			s.logger.Debug().Str("id", a.ID).Time("start", a.Start).
				Msg("dropping appointment outside requested range")
			continue
		}
		a.Origin = OriginRemote
		replacement = append(replacement, &a)
	}

	// Carry unconfirmed moves over the reload. The old snapshot still holds
	// the optimistic times.
	for id := range s.pending {
		moved := s.find(id)
		if moved == nil {
			continue
		}
		for _, a := range replacement {
			if a.ID == id {
				a.Start = moved.Start
				a.End = moved.End
				a.Origin = OriginLocalPending
			}
		}
	}

	s.rangeStart = rangeStart
	s.rangeEnd = rangeEnd
	s.appointments = replacement
	s.lastSyncedAt = time.Now().UTC()
	return nil
}

// ApplyOptimisticMove updates the appointment's times locally before the
// server confirms and returns a token for Confirm or Rollback. The entry is
// tagged local-pending until settled. At most one move per appointment can
// be in flight: a second one would leave the rollback times ambiguous, so
// it is rejected with ErrMovePending.
func (s *Store) ApplyOptimisticMove(id string, newStart, newEnd time.Time) (MoveToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.find(id)
	if a == nil {
		return MoveToken{}, ErrNotFound
	}
	if _, unsettled := s.pending[id]; unsettled {
		return MoveToken{}, ErrMovePending
	}
	token := MoveToken{id: id, prevStart: a.Start, prevEnd: a.End}
	a.Start = newStart
	a.End = newEnd
	a.Origin = OriginLocalPending
	s.pending[id] = token
	return token, nil
}

// Confirm settles an optimistic move after the server accepted it.
func (s *Store) Confirm(token MoveToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, token.id)
	if a := s.find(token.id); a != nil {
		a.Origin = OriginRemote
	}
}

// Rollback restores the appointment to its pre-move times after the server
// rejected the mutation.
func (s *Store) Rollback(token MoveToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, token.id)
	if a := s.find(token.id); a != nil {
		a.Start = token.prevStart
		a.End = token.prevEnd
		a.Origin = OriginRemote
	}
}

// Remove deletes the appointment on the server and drops it locally only
// once the server confirmed. Deletion is never optimistic.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.api.DeleteAppointment(ctx, id); err != nil {
		return fmt.Errorf("delete appointment %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	for i, a := range s.appointments {
		if a.ID == id {
			s.appointments = append(s.appointments[:i], s.appointments[i+1:]...)
			return nil
		}
	}
	return nil
}

// Get returns a copy of the appointment with the given id.
func (s *Store) Get(id string) (Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a := s.find(id); a != nil {
		return *a, true
	}
	return Appointment{}, false
}

// Snapshot returns a copy of all appointments in stored order.
func (s *Store) Snapshot() []Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Appointment, len(s.appointments))
	for i, a := range s.appointments {
		out[i] = *a
	}
	return out
}

// Range returns the currently loaded half-open range.
func (s *Store) Range() (time.Time, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rangeStart, s.rangeEnd
}

// LastSyncedAt returns when the snapshot last replaced successfully.
func (s *Store) LastSyncedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncedAt
}

// find locates an appointment by id. Caller holds s.mu.
func (s *Store) find(id string) *Appointment {
	for _, a := range s.appointments {
		if a.ID == id {
			return a
		}
	}
	return nil
}
