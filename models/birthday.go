package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInvalidDate is returned when a month/day pair can't occur in any year.
var ErrInvalidDate = errors.New("invalid birthday date")

// Birthday represents a user's birth day and month, and the timezone their
// day is observed in.
type Birthday struct {
	ID        string `gorm:"primaryKey;size:36"`
	DiscordID string `gorm:"uniqueIndex;not null"`
	Month     uint   `gorm:"not null"`
	Day       uint   `gorm:"not null"`
	Timezone  string `gorm:"not null"`

	// LastWishedYear is the local year the user was last wished in. Nil means
	// never.
	LastWishedYear *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns an ID to new records.
func (b *Birthday) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// WishedIn returns true if the user has already been wished in the given year.
func (b Birthday) WishedIn(year int) bool {
	return b.LastWishedYear != nil && *b.LastWishedYear == year
}

// Mention returns the discord mention string for the birthday's user.
func (b Birthday) Mention() string {
	return "<@" + b.DiscordID + ">"
}

// Date returns the birthday as a date in a leap year, for formatting.
func (b Birthday) Date() time.Time {
	return time.Date(2000, time.Month(b.Month), int(b.Day), 0, 0, 0, 0, time.UTC)
}

// ValidateDate checks that month and day form a date that occurs in at least
// one calendar year. February 29th is allowed.
func ValidateDate(month, day uint) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidDate, month)
	}
	if month == 2 && day == 29 {
		return nil
	}
	// day 0 of the following month in a non-leap year
	daysInMonth := time.Date(2001, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day < 1 || int(day) > daysInMonth {
		return fmt.Errorf("%w: %d-%02d", ErrInvalidDate, month, day)
	}
	return nil
}
