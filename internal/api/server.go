// Package api exposes the calendar as a JSON HTTP surface for the browser
// frontend. Handlers are thin: they translate requests into view, store and
// collaborator calls and hold no scheduling logic of their own.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"arvera/internal/booking"
	"arvera/internal/citasapi"
	"arvera/internal/syncer"
	"arvera/internal/view"
)

// MaxRangeDays caps how many days a single calendar request may span.
const MaxRangeDays = 90

// BookingAPI is the slice of the remote booking collaborator the handlers
// drive directly.
type BookingAPI interface {
	CreateAppointment(ctx context.Context, a booking.Appointment) (booking.Appointment, error)
	UpdateAppointmentTimes(ctx context.Context, id string, start, end time.Time) error
	NotifyChange(ctx context.Context)
	InvalidateFreeSlots(ctx context.Context)
	ListFreeSlots(ctx context.Context, rangeStart, rangeEnd time.Time, slotMinutes int, horarios, timezone string) ([]citasapi.FreeSlotDescriptor, error)
}

// HTTPServer serves the calendar API.
type HTTPServer struct {
	views  *view.Manager
	store  *booking.Store
	client BookingAPI
	sync   *syncer.Controller
	logger *zerolog.Logger
	mux    *http.ServeMux
}

// NewHTTPServer wires the handlers.
func NewHTTPServer(views *view.Manager, store *booking.Store, client BookingAPI, sync *syncer.Controller, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		views:  views,
		store:  store,
		client: client,
		sync:   sync,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/calendar", s.handleCalendar)
	s.mux.HandleFunc("/api/calendar/page", s.handlePage)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/slots", s.handleSlots)
	s.mux.HandleFunc("/api/slots/search", s.handleSlotSearch)
	s.mux.HandleFunc("/api/appointments", s.handleAppointments)
	s.mux.HandleFunc("/api/appointments/", s.handleAppointmentByID)
	s.mux.HandleFunc("/api/view", s.handleView)
	s.mux.HandleFunc("/api/visibility", s.handleVisibility)
	s.mux.HandleFunc("/api/export", s.handleExport)
	return s
}

// ServeHTTP implements http.Handler.
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves until the context is cancelled.
func (s *HTTPServer) Run(ctx context.Context, port int) error {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: s}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps core errors onto HTTP statuses with a readable
// message, keeping every failure retryable for the frontend.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, view.ErrConfigUnavailable):
		writeError(w, http.StatusServiceUnavailable, "schedule configuration is still loading; retry shortly")
	case errors.Is(err, view.ErrNoAvailability):
		writeError(w, http.StatusNotFound, "no free slots within the search window")
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, booking.ErrSuperseded):
		writeError(w, http.StatusConflict, "a newer refresh superseded this one; retry")
	case errors.Is(err, booking.ErrMovePending):
		writeError(w, http.StatusConflict, "a previous move of this appointment is still settling; retry")
	default:
		var rej *citasapi.RemoteRejection
		if errors.As(err, &rej) {
			msg := rej.Message
			if msg == "" {
				msg = "booking service rejected the request"
			}
			writeError(w, rej.StatusCode, msg)
			return
		}
		writeError(w, http.StatusBadGateway, "booking service unavailable; retry")
	}
}
