package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/booking"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/queue"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
)

type Booker interface {
	Book(ctx context.Context, req booking.Request, now time.Time) (booking.Result, error)
}

type BookingHandler struct {
	booker Booker
	logger *slog.Logger
	now    func() time.Time
}

func NewBookingHandler(booker Booker, logger *slog.Logger, now func() time.Time) *BookingHandler {
	if now == nil {
		now = time.Now
	}
	return &BookingHandler{booker: booker, logger: logger, now: now}
}

type createAppointmentRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Purpose         string `json:"purpose"`
	AdditionalNotes string `json:"additional_notes"`
}

type createAppointmentResponse struct {
	Appointment appointmentResponse `json:"appointment"`
	QueueStatus queue.Status        `json:"queue_status"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.booker.Book(r.Context(), booking.Request{
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Purpose:         req.Purpose,
		AdditionalNotes: req.AdditionalNotes,
	}, h.now())
	switch {
	case err == nil:
	case errors.Is(err, booking.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, booking.ErrClosed):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, storage.ErrDailyLimitReached):
		http.Error(w, "daily booking limit reached, try again tomorrow", http.StatusConflict)
		return
	default:
		h.logger.Error("booking failed", "err", err)
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	h.logger.Info("appointment booked",
		"appointment_id", res.Appointment.ID,
		"queue_number", res.Appointment.QueueNumber,
	)
	w.Header().Set("Location", "/api/queue/status/"+res.Appointment.QueueNumber)
	writeJSON(w, http.StatusCreated, createAppointmentResponse{
		Appointment: toAppointmentResponse(res.Appointment),
		QueueStatus: res.Status,
	})
}
