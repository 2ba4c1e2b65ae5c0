package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/auth"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/settings"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
)

type AdminStore interface {
	ListAppointments(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status model.Status, notes string, now time.Time) (model.Appointment, error)
	CancelAppointment(ctx context.Context, id int64, now time.Time) (model.Appointment, error)
	GetSettings(ctx context.Context) (model.QueueSetting, error)
	SaveSettings(ctx context.Context, s model.QueueSetting) error
}

type AdminHandler struct {
	store  AdminStore
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewAdminHandler(store AdminStore, logger *slog.Logger, loc *time.Location, now func() time.Time) *AdminHandler {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &AdminHandler{store: store, logger: logger, loc: loc, now: now}
}

func actor(r *http.Request) string {
	if c, ok := auth.ClaimsFromContext(r.Context()); ok {
		return c.Subject
	}
	return ""
}

type listAppointmentsResponse struct {
	Appointments []appointmentResponse `json:"appointments"`
}

// ListAppointments serves GET /api/admin/appointments?date=YYYY-MM-DD&limit=N.
func (h *AdminHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	var f storage.ListFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		day, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		f.DayPrefix = model.DayPrefix(day)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	appts, err := h.store.ListAppointments(r.Context(), f)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	resp := listAppointmentsResponse{Appointments: make([]appointmentResponse, 0, len(appts))}
	for _, a := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateStatusRequest struct {
	// Status is a name ("in_progress") or a stored code (1 or "1").
	Status json.RawMessage `json:"status"`
	Notes  string          `json:"notes"`
}

func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := model.ParseStatus(strings.Trim(string(req.Status), `"`))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appt, err := h.store.UpdateStatus(r.Context(), id, status, strings.TrimSpace(req.Notes), h.now())
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("update status failed", "appointment_id", id, "err", err)
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}
	h.logger.Info("appointment status updated",
		"appointment_id", id,
		"status", status.String(),
		"staff", actor(r),
	)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	appt, err := h.store.CancelAppointment(r.Context(), id, h.now())
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrInvalidTransition):
		http.Error(w, "only waiting or completed appointments can be cancelled", http.StatusConflict)
		return
	default:
		h.logger.Error("cancel appointment failed", "appointment_id", id, "err", err)
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}
	h.logger.Info("appointment cancelled", "appointment_id", id, "staff", actor(r))
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type settingsResponse struct {
	AverageWaitTime   int    `json:"average_wait_time"`
	MaxDailyBookings  int    `json:"max_daily_bookings"`
	WorkingHoursStart string `json:"working_hours_start"`
	WorkingHoursEnd   string `json:"working_hours_end"`
	IsHoliday         bool   `json:"is_holiday"`
	LastUpdated       string `json:"last_updated,omitempty"`
}

func toSettingsResponse(s model.QueueSetting) settingsResponse {
	resp := settingsResponse{
		AverageWaitTime:   s.AverageWaitTime,
		MaxDailyBookings:  s.MaxDailyBookings,
		WorkingHoursStart: s.WorkingHoursStart,
		WorkingHoursEnd:   s.WorkingHoursEnd,
		IsHoliday:         s.IsHoliday,
	}
	if !s.LastUpdated.IsZero() {
		resp.LastUpdated = s.LastUpdated.Format(time.RFC3339)
	}
	return resp
}

// updateSettingsRequest fields left out keep their current value.
type updateSettingsRequest struct {
	AverageWaitTime   *int    `json:"average_wait_time"`
	MaxDailyBookings  *int    `json:"max_daily_bookings"`
	WorkingHoursStart *string `json:"working_hours_start"`
	WorkingHoursEnd   *string `json:"working_hours_end"`
	IsHoliday         *bool   `json:"is_holiday"`
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := settings.Effective(r.Context(), h.store)
	if err != nil {
		h.logger.Error("load settings failed", "err", err)
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}

func (h *AdminHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := settings.Effective(r.Context(), h.store)
	if err != nil {
		h.logger.Error("load settings failed", "err", err)
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	if req.AverageWaitTime != nil {
		s.AverageWaitTime = *req.AverageWaitTime
	}
	if req.MaxDailyBookings != nil {
		s.MaxDailyBookings = *req.MaxDailyBookings
	}
	if req.WorkingHoursStart != nil {
		s.WorkingHoursStart = strings.TrimSpace(*req.WorkingHoursStart)
	}
	if req.WorkingHoursEnd != nil {
		s.WorkingHoursEnd = strings.TrimSpace(*req.WorkingHoursEnd)
	}
	if req.IsHoliday != nil {
		s.IsHoliday = *req.IsHoliday
	}
	if err := s.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.LastUpdated = h.now()

	if err := h.store.SaveSettings(r.Context(), s); err != nil {
		h.logger.Error("save settings failed", "err", err)
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	h.logger.Info("queue settings updated",
		"average_wait_time", s.AverageWaitTime,
		"max_daily_bookings", s.MaxDailyBookings,
		"is_holiday", s.IsHoliday,
		"staff", actor(r),
	)
	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}
