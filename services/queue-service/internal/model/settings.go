package model

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultAverageWaitTime  = 15
	DefaultMaxDailyBookings = 50
)

type QueueSetting struct {
	AverageWaitTime   int
	MaxDailyBookings  int
	WorkingHoursStart string // HH:MM
	WorkingHoursEnd   string // HH:MM
	IsHoliday         bool
	LastUpdated       time.Time
}

// DefaultQueueSetting is what applies when no settings row exists.
func DefaultQueueSetting() QueueSetting {
	return QueueSetting{
		AverageWaitTime:   DefaultAverageWaitTime,
		MaxDailyBookings:  DefaultMaxDailyBookings,
		WorkingHoursStart: "09:00",
		WorkingHoursEnd:   "17:00",
	}
}

var ErrInvalidSetting = errors.New("invalid queue setting")

func (s QueueSetting) Validate() error {
	if s.AverageWaitTime < 1 || s.AverageWaitTime > 60 {
		return fmt.Errorf("%w: average wait time must be between 1 and 60 minutes", ErrInvalidSetting)
	}
	if s.MaxDailyBookings < 1 || s.MaxDailyBookings > 100 {
		return fmt.Errorf("%w: max daily bookings must be between 1 and 100", ErrInvalidSetting)
	}
	start, err := time.Parse("15:04", s.WorkingHoursStart)
	if err != nil {
		return fmt.Errorf("%w: working hours start must be HH:MM", ErrInvalidSetting)
	}
	end, err := time.Parse("15:04", s.WorkingHoursEnd)
	if err != nil {
		return fmt.Errorf("%w: working hours end must be HH:MM", ErrInvalidSetting)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: working hours end must be after start", ErrInvalidSetting)
	}
	return nil
}
