package model

import (
	"fmt"
	"strings"
	"time"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

func ParseBookingStatus(raw string) (BookingStatus, error) {
	s := BookingStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown booking status %q", raw)
	}
	return s, nil
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Active statuses block the tutor's time.
func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo encodes the booking lifecycle. Terminal states are final.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

type Booking struct {
	ID              string
	TutorID         string
	StudentID       string
	Interval        TimeInterval
	Status          BookingStatus
	Subject         string
	TotalCostCents  int64
	Currency        string
	Notes           string
	CancelReason    string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	PaymentIntentID string
}

// HasParty reports whether accountID is the tutor or the student of b.
func (b Booking) HasParty(accountID string) bool {
	return accountID != "" && (accountID == b.TutorID || accountID == b.StudentID)
}
