package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority orders tasks for display and remote filtering.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityNone   Priority = "none"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityNone:
		return true
	}
	return false
}

// Frequency describes when a repetition fires. A weekly pattern is stored as
// one row per selected weekday.
type Frequency string

const (
	FreqOnce    Frequency = "once"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

var weekdays = map[Frequency]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

func (f Frequency) Valid() bool {
	switch f {
	case FreqOnce, FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return true
	}
	return weekdays[f]
}

// Repetition belongs to a task. A nil TimeOfDay means all day.
type Repetition struct {
	ID        uint      `gorm:"primaryKey"`
	TaskID    string    `gorm:"index;not null"`
	Frequency Frequency `gorm:"not null"`
	TimeOfDay *string   `gorm:"column:time"` // HH:MM:SS
}

func (Repetition) TableName() string { return "task_repetitions" }

// Completion records that a task was done on a calendar date. At most one
// completion exists per (task, date) pair.
type Completion struct {
	ID             string    `gorm:"primaryKey"`
	TaskID         string    `gorm:"index;uniqueIndex:idx_completion_task_date;not null"`
	CompletionTime time.Time `gorm:"not null"`
	Date           string    `gorm:"index;uniqueIndex:idx_completion_task_date;not null"` // YYYY-MM-DD
}

func (Completion) TableName() string { return "task_completions" }

// Task is the fully hydrated domain object. The identifier is either a
// server-issued id or a local id carrying LocalIDPrefix; the prefix is the
// only signal that a task has not round-tripped through the remote yet.
type Task struct {
	ID             string `gorm:"primaryKey"`
	UserID         int64  `gorm:"index"`
	Title          string `gorm:"not null"`
	ReminderOffset *int   // minutes before start, nil = no reminder
	StartTime      time.Time `gorm:"not null"`
	EndTime        *time.Time
	Priority       Priority `gorm:"default:none"`
	Emoji          string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Categories  []Category   `gorm:"many2many:task_categories;constraint:OnDelete:CASCADE"`
	Repetitions []Repetition `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
	Completions []Completion `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

// LocalIDPrefix marks identifiers minted on-device before the remote has
// confirmed the entity.
const LocalIDPrefix = "local_"

func NewLocalID() string { return LocalIDPrefix + uuid.NewString() }

func NewCompletionID() string { return uuid.NewString() }

func IsLocalID(id string) bool { return strings.HasPrefix(id, LocalIDPrefix) }

// DateOf renders t as the calendar date used by completions.
func DateOf(t time.Time) string { return t.Format("2006-01-02") }
