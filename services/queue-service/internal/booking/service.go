package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/email"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/queue"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/settings"
)

var (
	ErrValidation = errors.New("invalid booking request")
	ErrClosed     = errors.New("pharmacy is not taking bookings today")
)

const purposeOther = "Other"

var phonePattern = regexp.MustCompile(`^\+?[0-9 ().-]{7,20}$`)

type Store interface {
	GetSettings(ctx context.Context) (model.QueueSetting, error)
	CreateAppointment(ctx context.Context, a model.NewAppointment, day time.Time, maxDaily int) (model.Appointment, error)
	InsertNotification(ctx context.Context, n *model.Notification) error
	MarkNotificationSent(ctx context.Context, notificationID int64) error
}

type Resolver interface {
	Resolve(ctx context.Context, queueNumber string, now time.Time) (queue.Status, error)
}

type Request struct {
	Name            string
	Email           string
	Phone           string
	Purpose         string
	AdditionalNotes string
}

type Result struct {
	Appointment model.Appointment
	Status      queue.Status
}

type Service struct {
	store     Store
	resolver  Resolver
	sender    email.Sender
	logger    *slog.Logger
	loc       *time.Location
	statusURL string
}

type Config struct {
	// Location decides which calendar day a booking belongs to.
	Location *time.Location
	// PublicBaseURL, when set, is linked from the confirmation email.
	PublicBaseURL string
}

func NewService(store Store, resolver Resolver, sender email.Sender, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		store:     store,
		resolver:  resolver,
		sender:    sender,
		logger:    logger,
		loc:       cfg.Location,
		statusURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

// Book validates req, assigns the next queue number for today and sends the
// confirmation email. Delivery problems are logged and do not fail the booking.
func (s *Service) Book(ctx context.Context, req Request, now time.Time) (Result, error) {
	appt, err := normalize(req)
	if err != nil {
		return Result{}, err
	}

	setting, err := settings.Effective(ctx, s.store)
	if err != nil {
		return Result{}, fmt.Errorf("load settings: %w", err)
	}
	if setting.IsHoliday {
		return Result{}, ErrClosed
	}

	local := now.In(s.loc)
	appt.CreatedTime = local
	created, err := s.store.CreateAppointment(ctx, appt, local, setting.MaxDailyBookings)
	if err != nil {
		return Result{}, err
	}

	st, err := s.resolver.Resolve(ctx, created.QueueNumber, now)
	if err != nil {
		// the booking exists; report it without a live position
		s.logger.Error("resolve after booking failed", "queue_number", created.QueueNumber, "err", err)
		st = queue.Status{
			Valid:                  true,
			QueueNumber:            created.QueueNumber,
			Status:                 created.Status,
			LastUpdated:            now,
			AppointmentCreatedTime: created.CreatedTime,
		}
	}

	s.confirm(ctx, created, st, now)
	return Result{Appointment: created, Status: st}, nil
}

func (s *Service) confirm(ctx context.Context, appt model.Appointment, st queue.Status, now time.Time) {
	data := email.ConfirmationData{
		Name:              appt.Name,
		QueueNumber:       appt.QueueNumber,
		Purpose:           appt.Purpose,
		Position:          st.Position(),
		EstimatedWaitTime: st.EstimatedWaitTime,
		BookedAt:          appt.CreatedTime,
	}
	if s.statusURL != "" {
		data.StatusURL = s.statusURL + "/api/queue/status/" + appt.QueueNumber
	}
	msg := email.Confirmation(data)

	n := model.Notification{
		AppointmentID:    appt.ID,
		Type:             model.NotificationConfirmation,
		EmailContent:     msg.Body,
		NotificationTime: now,
	}
	if err := s.store.InsertNotification(ctx, &n); err != nil {
		s.logger.Error("record confirmation failed", "appointment_id", appt.ID, "err", err)
		return
	}
	if err := s.sender.Send(ctx, appt.Email, msg.Subject, msg.Body); err != nil {
		s.logger.Error("confirmation email failed", "appointment_id", appt.ID, "err", err)
		return
	}
	if err := s.store.MarkNotificationSent(ctx, n.ID); err != nil {
		s.logger.Error("mark confirmation sent failed", "notification_id", n.ID, "err", err)
	}
}

func normalize(req Request) (model.NewAppointment, error) {
	a := model.NewAppointment{
		Name:            strings.TrimSpace(req.Name),
		Email:           strings.TrimSpace(req.Email),
		Phone:           strings.TrimSpace(req.Phone),
		Purpose:         strings.TrimSpace(req.Purpose),
		AdditionalNotes: strings.TrimSpace(req.AdditionalNotes),
	}
	if a.Name == "" || a.Email == "" || a.Phone == "" || a.Purpose == "" {
		return a, fmt.Errorf("%w: name, email, phone and purpose are required", ErrValidation)
	}
	if addr, err := mail.ParseAddress(a.Email); err != nil || addr.Address != a.Email {
		return a, fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	if !phonePattern.MatchString(a.Phone) {
		return a, fmt.Errorf("%w: invalid phone number", ErrValidation)
	}
	if a.Purpose == purposeOther && a.AdditionalNotes != "" {
		a.Purpose = purposeOther + " - " + a.AdditionalNotes
	}
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"name", a.Name, 100},
		{"email", a.Email, 100},
		{"phone", a.Phone, 20},
		{"purpose", a.Purpose, 500},
		{"additional_notes", a.AdditionalNotes, 500},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			return a, fmt.Errorf("%w: %s must be at most %d characters", ErrValidation, f.name, f.max)
		}
	}
	return a, nil
}
