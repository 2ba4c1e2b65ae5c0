package handlers

import (
	"net/http"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/auth"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/httpx"
)

type Routes struct {
	Queue   *QueueHandler
	Booking *BookingHandler
	// Admin routes are mounted only when both Admin and AdminSecret are set.
	Admin          *AdminHandler
	AdminSecret    string
	RequestTimeout time.Duration
}

// Register mounts the public queue API, booking and the staff API on mux.
// The websocket route is left outside the request timeout.
func Register(mux *http.ServeMux, rt Routes) {
	timeout := rt.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	api := func(h http.HandlerFunc, m ...httpx.Middleware) http.Handler {
		return httpx.Chain(h, append([]httpx.Middleware{httpx.WithTimeout(timeout)}, m...)...)
	}

	mux.Handle("GET /api/queue/status/{queueNumber}", api(rt.Queue.Status))
	mux.Handle("GET /api/tickets/{queueNumber}/qrcode", api(rt.Queue.QRCode))
	mux.Handle("GET /api/tickets/{queueNumber}/ticket.pdf", api(rt.Queue.TicketPDF))
	mux.HandleFunc("GET /ws/queue/{queueNumber}", rt.Queue.Live)

	if rt.Booking != nil {
		mux.Handle("POST /api/appointments", api(rt.Booking.Create))
	}

	if rt.Admin == nil || rt.AdminSecret == "" {
		return
	}
	staff := httpx.Middleware(auth.RequireRole(rt.AdminSecret, auth.RoleStaff, auth.RoleSuper))
	mux.Handle("GET /api/admin/appointments", api(rt.Admin.ListAppointments, staff))
	mux.Handle("POST /api/admin/appointments/{id}/status", api(rt.Admin.UpdateStatus, staff))
	mux.Handle("POST /api/admin/appointments/{id}/cancel", api(rt.Admin.Cancel, staff))
	mux.Handle("GET /api/admin/settings", api(rt.Admin.GetSettings, staff))
	mux.Handle("PUT /api/admin/settings", api(rt.Admin.PutSettings, staff))
}
