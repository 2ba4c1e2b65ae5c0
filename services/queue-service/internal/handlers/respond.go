package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON writes the 4xx itself and reports whether the handler may go on.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

type appointmentResponse struct {
	ID              int64        `json:"id"`
	Name            string       `json:"name"`
	Email           string       `json:"email"`
	Phone           string       `json:"phone"`
	Purpose         string       `json:"purpose"`
	AdditionalNotes string       `json:"additional_notes,omitempty"`
	QueueNumber     string       `json:"queue_number"`
	Status          model.Status `json:"status"`
	StatusCode      int          `json:"status_code"`
	CreatedTime     string       `json:"created_time"`
	LastUpdated     string       `json:"last_updated,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:              a.ID,
		Name:            a.Name,
		Email:           a.Email,
		Phone:           a.Phone,
		Purpose:         a.Purpose,
		AdditionalNotes: a.AdditionalNotes,
		QueueNumber:     a.QueueNumber,
		Status:          a.Status,
		StatusCode:      int(a.Status),
		CreatedTime:     a.CreatedTime.Format(time.RFC3339),
	}
	if a.LastUpdated != nil {
		resp.LastUpdated = a.LastUpdated.Format(time.RFC3339)
	}
	return resp
}
