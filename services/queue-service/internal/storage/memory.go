package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
)

// Memory is an in-process Store for local runs (STORE_DRIVER=memory) and tests.
type Memory struct {
	mu            sync.RWMutex
	nextApptID    int64
	nextNotifID   int64
	appointments  map[int64]model.Appointment
	notifications map[int64]model.Notification
	settings      *model.QueueSetting
}

func NewMemory() *Memory {
	return &Memory{
		appointments:  map[int64]model.Appointment{},
		notifications: map[int64]model.Notification{},
	}
}

// Put stores a fully formed appointment as is, assigning an ID when zero.
// Tests use it to build queues with exact creation times.
func (m *Memory) Put(a model.Appointment) model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		m.nextApptID++
		a.ID = m.nextApptID
	} else if a.ID > m.nextApptID {
		m.nextApptID = a.ID
	}
	m.appointments[a.ID] = a
	return a
}

// Notifications returns every notification recorded for appointmentID.
func (m *Memory) Notifications(appointmentID int64) []model.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Notification
	for _, n := range m.notifications {
		if n.AppointmentID == appointmentID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) FindByQueueNumber(_ context.Context, queueNumber string) (model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.appointments {
		if a.QueueNumber == queueNumber {
			return a, nil
		}
	}
	return model.Appointment{}, ErrNotFound
}

func (m *Memory) CountWaitingBefore(_ context.Context, datePrefix, queueNumber string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.appointments {
		if a.Status == model.StatusWaiting && strings.HasPrefix(a.QueueNumber, datePrefix) && a.QueueNumber < queueNumber {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetSettings(_ context.Context) (model.QueueSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return model.QueueSetting{}, ErrNotFound
	}
	return *m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, s model.QueueSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *Memory) ListWaiting(_ context.Context) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appointments {
		if a.Status == model.StatusWaiting {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueNumber < out[j].QueueNumber })
	return out, nil
}

func (m *Memory) FindNotification(_ context.Context, appointmentID int64, notificationType string) (model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.notifications {
		if n.AppointmentID == appointmentID && n.Type == notificationType {
			return n, nil
		}
	}
	return model.Notification{}, ErrNotFound
}

func (m *Memory) InsertNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[n.AppointmentID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.notifications {
		if existing.AppointmentID == n.AppointmentID && existing.Type == n.Type {
			return ErrDuplicate
		}
	}
	m.nextNotifID++
	n.ID = m.nextNotifID
	m.notifications[n.ID] = *n
	return nil
}

func (m *Memory) MarkNotificationSent(_ context.Context, notificationID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[notificationID]
	if !ok {
		return ErrNotFound
	}
	n.EmailSent = true
	m.notifications[notificationID] = n
	return nil
}

func (m *Memory) CreateAppointment(_ context.Context, a model.NewAppointment, day time.Time, maxDaily int) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := model.DayPrefix(day)
	existing := 0
	for _, appt := range m.appointments {
		if strings.HasPrefix(appt.QueueNumber, prefix) {
			existing++
		}
	}
	seq, err := nextSequence(existing, maxDaily)
	if err != nil {
		return model.Appointment{}, err
	}

	m.nextApptID++
	appt := model.Appointment{
		ID:              m.nextApptID,
		Name:            a.Name,
		Email:           a.Email,
		Phone:           a.Phone,
		Purpose:         a.Purpose,
		AdditionalNotes: a.AdditionalNotes,
		QueueNumber:     model.FormatQueueNumber(day, seq),
		Status:          model.StatusWaiting,
		CreatedTime:     a.CreatedTime,
	}
	created := a.CreatedTime
	appt.LastUpdated = &created
	m.appointments[appt.ID] = appt
	return appt, nil
}

func (m *Memory) GetAppointment(_ context.Context, id int64) (model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) ListAppointments(_ context.Context, f ListFilter) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appointments {
		if f.DayPrefix != "" && !strings.HasPrefix(a.QueueNumber, f.DayPrefix) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedTime.Equal(out[j].CreatedTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedTime.After(out[j].CreatedTime)
	})
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id int64, status model.Status, notes string, now time.Time) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	a.Status = status
	if notes != "" {
		a.AdditionalNotes = notes
	}
	a.LastUpdated = &now
	m.appointments[id] = a
	return a, nil
}

func (m *Memory) CancelAppointment(_ context.Context, id int64, now time.Time) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	if !cancellable(a.Status) {
		return model.Appointment{}, ErrInvalidTransition
	}
	a.Status = model.StatusCancelled
	a.LastUpdated = &now
	m.appointments[id] = a
	return a, nil
}

func (m *Memory) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, a := range m.appointments {
		if a.CreatedTime.Before(cutoff) {
			delete(m.appointments, id)
			deleted++
		}
	}
	for id, n := range m.notifications {
		if _, ok := m.appointments[n.AppointmentID]; !ok {
			delete(m.notifications, id)
		}
	}
	return deleted, nil
}

var _ Store = (*Memory)(nil)
