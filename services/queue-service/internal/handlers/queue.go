package handlers

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/queue"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/ticket"
	"github.com/gorilla/websocket"
)

type Resolver interface {
	Resolve(ctx context.Context, queueNumber string, now time.Time) (queue.Status, error)
}

type AppointmentFinder interface {
	FindByQueueNumber(ctx context.Context, queueNumber string) (model.Appointment, error)
}

type QueueHandler struct {
	resolver  Resolver
	finder    AppointmentFinder
	logger    *slog.Logger
	now       func() time.Time
	baseURL   string
	pushEvery time.Duration
	upgrader  websocket.Upgrader
}

type QueueConfig struct {
	PublicBaseURL  string
	AllowedOrigins []string
	PushEvery      time.Duration
	Now            func() time.Time
}

func NewQueueHandler(resolver Resolver, finder AppointmentFinder, logger *slog.Logger, cfg QueueConfig) *QueueHandler {
	if cfg.PushEvery <= 0 {
		cfg.PushEvery = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &QueueHandler{
		resolver:  resolver,
		finder:    finder,
		logger:    logger,
		now:       cfg.Now,
		baseURL:   strings.TrimRight(cfg.PublicBaseURL, "/"),
		pushEvery: cfg.PushEvery,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// resolveOr404 writes the error response itself when it returns false.
func (h *QueueHandler) resolveOr404(w http.ResponseWriter, r *http.Request) (queue.Status, bool) {
	qn := r.PathValue("queueNumber")
	st, err := h.resolver.Resolve(r.Context(), qn, h.now())
	if err != nil {
		h.logger.Error("queue status failed", "queue_number", qn, "err", err)
		http.Error(w, "failed to load queue status", http.StatusInternalServerError)
		return queue.Status{}, false
	}
	if !st.Valid {
		http.Error(w, "queue not found", http.StatusNotFound)
		return st, false
	}
	return st, true
}

func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, ok := h.resolveOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *QueueHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	st, ok := h.resolveOr404(w, r)
	if !ok {
		return
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	png, err := ticket.QRCode(ticket.QRContent(h.baseURL, st.QueueNumber), size)
	if err != nil {
		h.logger.Error("qr code render failed", "queue_number", st.QueueNumber, "err", err)
		http.Error(w, "failed to render qr code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(png)
}

func (h *QueueHandler) TicketPDF(w http.ResponseWriter, r *http.Request) {
	st, ok := h.resolveOr404(w, r)
	if !ok {
		return
	}
	appt, err := h.finder.FindByQueueNumber(r.Context(), st.QueueNumber)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "queue not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("ticket lookup failed", "queue_number", st.QueueNumber, "err", err)
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	err = ticket.WritePDF(&buf, ticket.Ticket{
		QueueNumber:       appt.QueueNumber,
		Name:              appt.Name,
		Purpose:           appt.Purpose,
		BookedAt:          appt.CreatedTime,
		Status:            st.Status.String(),
		Position:          st.Position(),
		EstimatedWaitTime: st.EstimatedWaitTime,
		QRContent:         ticket.QRContent(h.baseURL, appt.QueueNumber),
	})
	if err != nil {
		h.logger.Error("ticket render failed", "queue_number", appt.QueueNumber, "err", err)
		http.Error(w, "failed to render ticket", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="ticket-`+appt.QueueNumber+`.pdf"`)
	_, _ = w.Write(buf.Bytes())
}

// Live pushes the ticket status every pushEvery until the ticket leaves the
// waiting state or the client goes away.
func (h *QueueHandler) Live(w http.ResponseWriter, r *http.Request) {
	st, ok := h.resolveOr404(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pushEvery)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(st); err != nil {
			return
		}
		if st.Status != model.StatusWaiting {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, st.Status.String())
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
		select {
		case <-gone:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		next, err := h.resolver.Resolve(ctx, st.QueueNumber, h.now())
		if err != nil || !next.Valid {
			if err != nil {
				h.logger.Error("live queue status failed", "queue_number", st.QueueNumber, "err", err)
			}
			msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "status unavailable")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
		st = next
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
