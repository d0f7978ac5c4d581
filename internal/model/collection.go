package model

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the medium a dunning message went out on.
type Channel string

const (
	ChannelEmail  Channel = "EMAIL"
	ChannelSMS    Channel = "SMS"
	ChannelLetter Channel = "LETTER"
)

// IsValid reports whether c is a known channel.
func (c Channel) IsValid() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelLetter
}

// CollectionAttempt records one dunning message sent for an instrument.
type CollectionAttempt struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey"`
	InstrumentID uuid.UUID `gorm:"type:char(36);not null;index"`
	Channel      Channel   `gorm:"size:16;not null"`
	SentAt       time.Time `gorm:"not null"`
	Note         string    `gorm:"size:255"`
	CreatedAt    time.Time
}

// SequenceCounter is the last value handed out for a (year, kind) pair.
// Year-independent kinds use year 0.
type SequenceCounter struct {
	Year      int    `gorm:"primaryKey;autoIncrement:false"`
	Kind      string `gorm:"primaryKey;size:32"`
	LastValue int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}
