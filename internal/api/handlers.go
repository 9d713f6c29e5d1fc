package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arvera/internal/booking"
	"arvera/internal/export"
	"arvera/internal/metrics"
	"arvera/internal/schedule"
	"arvera/internal/view"
)

// handleCalendar returns the occupancy grid for the visible range.
// GET /api/calendar?anchor=YYYY-MM-DD
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	if anchor := r.URL.Query().Get("anchor"); anchor != "" {
		date, err := parseDateParam(anchor)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if date.After(time.Now().AddDate(0, 0, MaxRangeDays)) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("anchor beyond the %d-day horizon", MaxRangeDays))
			return
		}
		if err := s.views.JumpTo(r.Context(), date); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	grid, err := s.views.CalendarGrid()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gridResponse(grid, s.store.LastSyncedAt()))
}

type pageRequest struct {
	Pages int `json:"pages"`
}

// handlePage moves the visible range by whole ranges and reloads.
// POST /api/calendar/page
func (s *HTTPServer) handlePage(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar_page")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req pageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Pages == 0 {
		writeError(w, http.StatusBadRequest, "pages must be non-zero")
		return
	}

	if err := s.views.Page(r.Context(), req.Pages); err != nil {
		s.writeDomainError(w, err)
		return
	}
	grid, err := s.views.CalendarGrid()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gridResponse(grid, s.store.LastSyncedAt()))
}

// handleStats returns the sidebar statistics for the visible range.
// GET /api/stats
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("stats")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	stats, err := s.views.WeekStats()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"today":             stats.Today,
		"week":              stats.Week,
		"occupancy_percent": stats.OccupancyPercent,
		"top_service":       stats.TopService,
	})
}

// handleSlots lists the free slots of the visible range grouped per day.
// GET /api/slots
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	byDay, err := s.views.FreeSlotsByDay()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	days := make([]map[string]any, 0, len(byDay))
	for _, day := range byDay {
		slots := make([]map[string]any, 0, len(day.Slots))
		for _, slot := range day.Slots {
			slots = append(slots, map[string]any{
				"start":     slot.Start.String(),
				"startTime": slot.StartInstant.UTC().Format(time.RFC3339),
				"endTime":   slot.EndInstant.UTC().Format(time.RFC3339),
			})
		}
		days = append(days, map[string]any{
			"date":  day.Date.Format("2006-01-02"),
			"slots": slots,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

// handleSlotSearch serves the public booking page: free slots from the
// availability collaborator, advancing up to the look-ahead cap when the
// requested range is fully booked.
// GET /api/slots/search?from=YYYY-MM-DD
func (s *HTTPServer) handleSlotSearch(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slot_search")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	from := time.Now()
	if raw := r.URL.Query().Get("from"); raw != "" {
		date, err := parseDateParam(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		from = date
	}

	descriptors, err := s.views.Search(r.Context(), s.client, from)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"disponibles": descriptors,
		"total":       len(descriptors),
	})
}

type createAppointmentRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Service      string `json:"service"`
	PlateNumber  string `json:"plate_number"`
	VehicleModel string `json:"vehicle_model"`
	Notes        string `json:"notes"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
}

// handleAppointments books a new appointment.
// POST /api/appointments
func (s *HTTPServer) handleAppointments(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointments_create")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req createAppointmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	appt, err := req.toAppointment()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.client.CreateAppointment(r.Context(), appt)
	if err != nil {
		metrics.IncAppointmentOp("create", "error")
		s.writeDomainError(w, err)
		return
	}
	metrics.IncAppointmentOp("create", "ok")

	s.client.InvalidateFreeSlots(r.Context())
	s.client.NotifyChange(r.Context())
	if err := s.views.Reload(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("store refresh after create failed")
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": created.ID})
}

func (req createAppointmentRequest) toAppointment() (booking.Appointment, error) {
	if strings.TrimSpace(req.Name) == "" {
		return booking.Appointment{}, fmt.Errorf("name is required")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return booking.Appointment{}, fmt.Errorf("phone is required")
	}
	if strings.TrimSpace(req.Service) == "" {
		return booking.Appointment{}, fmt.Errorf("at least one service is required")
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return booking.Appointment{}, fmt.Errorf("invalid startTime; expected RFC 3339")
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return booking.Appointment{}, fmt.Errorf("invalid endTime; expected RFC 3339")
	}
	if !end.After(start) {
		return booking.Appointment{}, fmt.Errorf("endTime must follow startTime")
	}
	return booking.Appointment{
		CustomerName: strings.TrimSpace(req.Name),
		Phone:        strings.TrimSpace(req.Phone),
		Email:        strings.TrimSpace(req.Email),
		Service:      req.Service,
		PlateNumber:  strings.TrimSpace(req.PlateNumber),
		VehicleModel: strings.TrimSpace(req.VehicleModel),
		Notes:        req.Notes,
		Start:        start.UTC(),
		End:          end.UTC(),
		Origin:       booking.OriginLocalPending,
	}, nil
}

type moveRequest struct {
	StartTime string `json:"startTime"`
}

// handleAppointmentByID moves or deletes one appointment.
// PUT /api/appointments/{id} moves it to a new slot (optimistic, rolled
// back on rejection). DELETE /api/appointments/{id}?confirm=true deletes;
// without the explicit confirmation flag no request reaches the server.
func (s *HTTPServer) handleAppointmentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/appointments/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "unknown appointment path")
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.moveAppointment(w, r, id)
	case http.MethodDelete:
		s.deleteAppointment(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use PUT or DELETE")
	}
}

func (s *HTTPServer) moveAppointment(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("appointments_move")

	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startTime; expected RFC 3339")
		return
	}

	cfg, err := s.views.Schedule()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	local := start.In(cfg.Location())
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, cfg.Location())
	target := cfg.SlotAt(day, schedule.TimeOfDay{Hour: local.Hour(), Minute: local.Minute()})

	if err := view.CommitMove(r.Context(), s.store, s.client, s.logger, id, target); err != nil {
		metrics.IncAppointmentOp("move", "error")
		s.writeDomainError(w, err)
		return
	}
	metrics.IncAppointmentOp("move", "ok")
	s.client.InvalidateFreeSlots(r.Context())
	s.client.NotifyChange(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "moved"})
}

func (s *HTTPServer) deleteAppointment(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("appointments_delete")

	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusPreconditionRequired, "deletion requires explicit confirmation (confirm=true)")
		return
	}

	if err := s.store.Remove(r.Context(), id); err != nil {
		metrics.IncAppointmentOp("delete", "error")
		s.writeDomainError(w, err)
		return
	}
	metrics.IncAppointmentOp("delete", "ok")
	s.client.InvalidateFreeSlots(r.Context())
	s.client.NotifyChange(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type viewRequest struct {
	View string `json:"view"`
}

// handleView reads or stores the last active view preference.
// GET /api/view, POST /api/view
func (s *HTTPServer) handleView(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("view_pref")

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"view": s.views.ActiveView()})
	case http.MethodPost:
		var req viewRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.View != "calendar" && req.View != "slots" {
			writeError(w, http.StatusBadRequest, "view must be \"calendar\" or \"slots\"")
			return
		}
		s.views.SetActiveView(req.View)
		writeJSON(w, http.StatusOK, map[string]string{"view": req.View})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET or POST")
	}
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

// handleVisibility relays the frontend's document-visibility state to the
// sync controller so polling pauses on hidden tabs.
// POST /api/visibility
func (s *HTTPServer) handleVisibility(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("visibility")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req visibilityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.sync.SetVisible(r.Context(), req.Visible)
	writeJSON(w, http.StatusOK, map[string]bool{"visible": req.Visible})
}

// handleExport downloads the visible range as an xlsx workbook.
// GET /api/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	cfg, err := s.views.Schedule()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	grid, err := s.views.CalendarGrid()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	// Render fully before touching the response, so a workbook failure
	// surfaces as an error instead of a truncated download.
	var buf bytes.Buffer
	if err := export.WriteWeek(&buf, cfg, grid.Days, s.store.Snapshot()); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed; retry")
		return
	}

	filename := fmt.Sprintf("agenda_%s.xlsx", grid.Days[0].Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug().Err(err).Msg("export download aborted by client")
	}
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func parseDateParam(raw string) (time.Time, error) {
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", raw)
	}
	return date, nil
}

type gridCell struct {
	Date      string `json:"date"`
	Start     string `json:"start"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Free      bool   `json:"free"`
	Pending   bool   `json:"pending,omitempty"`
	Customer  string `json:"customer,omitempty"`
	Service   string `json:"service,omitempty"`
	Vehicle   string `json:"vehicle,omitempty"`
	Plate     string `json:"plate,omitempty"`
}

type gridRow struct {
	Time  string     `json:"time"`
	Cells []gridCell `json:"cells"`
}

func gridResponse(grid *view.Grid, lastSyncedAt time.Time) map[string]any {
	days := make([]string, len(grid.Days))
	for i, d := range grid.Days {
		days[i] = d.Format("2006-01-02")
	}

	rows := make([]gridRow, 0, len(grid.Rows))
	for _, row := range grid.Rows {
		out := gridRow{Time: row.Time}
		for _, cell := range row.Cells {
			gc := gridCell{
				Date:      cell.Slot.Date.Format("2006-01-02"),
				Start:     cell.Slot.Start.String(),
				StartTime: cell.Slot.StartInstant.UTC().Format(time.RFC3339),
				EndTime:   cell.Slot.EndInstant.UTC().Format(time.RFC3339),
				Free:      cell.Appointment == nil,
			}
			if cell.Appointment != nil {
				gc.Pending = cell.Pending
				gc.Customer = cell.Appointment.CustomerName
				gc.Service = cell.Appointment.Service
				gc.Vehicle = cell.Appointment.VehicleModel
				gc.Plate = cell.Appointment.PlateNumber
			}
			out.Cells = append(out.Cells, gc)
		}
		rows = append(rows, out)
	}

	resp := map[string]any{
		"days":  days,
		"times": grid.Times,
		"rows":  rows,
	}
	if !lastSyncedAt.IsZero() {
		resp["last_synced_at"] = lastSyncedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
