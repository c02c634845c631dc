// Package model defines the core domain types for the event registration system.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the closed set of states a registration row can be in.
type RegistrationStatus string

const (
	StatusRegistered RegistrationStatus = "registered"
	StatusCanceled   RegistrationStatus = "canceled"
)

// ParseRegistrationStatus converts a stored status tag into a RegistrationStatus.
func ParseRegistrationStatus(s string) (RegistrationStatus, error) {
	switch RegistrationStatus(s) {
	case StatusRegistered:
		return StatusRegistered, nil
	case StatusCanceled:
		return StatusCanceled, nil
	}
	return "", fmt.Errorf("unknown registration status %q", s)
}

// Active reports whether the status occupies a seat.
func (s RegistrationStatus) Active() bool {
	return s == StatusRegistered
}

// Event is the display projection of an event.
type Event struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	StartsAt        time.Time  `json:"starts_at"`
	SignupDeadline  *time.Time `json:"signup_deadline,omitempty"`
	Capacity        *int       `json:"capacity,omitempty"`
	IsPublished     bool       `json:"is_published"`
	RegisteredCount int        `json:"registered_count"`
	RemainingSeats  *int       `json:"remaining,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Remaining returns the number of free seats, or nil when capacity is unlimited.
// Repositories copy it into RemainingSeats when an event is read.
func (e *Event) Remaining() *int {
	if e.Capacity == nil {
		return nil
	}
	n := *e.Capacity - e.RegisteredCount
	if n < 0 {
		n = 0
	}
	return &n
}

// EventSnapshot is the subset of an event the registration path decides on.
type EventSnapshot struct {
	Capacity       *int
	SignupDeadline *time.Time
	StartsAt       time.Time
	IsPublished    bool
}

// Registration is one (event, student) row in the ledger.
type Registration struct {
	EventID      uuid.UUID          `json:"event_id"`
	StudentID    uuid.UUID          `json:"student_id"`
	Status       RegistrationStatus `json:"status"`
	RegisteredAt time.Time          `json:"registered_at"`
	CanceledAt   *time.Time         `json:"canceled_at,omitempty"`
}

// RegistrationView is an active registration enriched with the student's identity.
type RegistrationView struct {
	Registration
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
}

// StudentRegistration is an active registration seen from the student's side.
type StudentRegistration struct {
	Registration
	EventTitle    string    `json:"event_title"`
	EventStartsAt time.Time `json:"event_starts_at"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	StartsAt       time.Time  `json:"starts_at"`
	SignupDeadline *time.Time `json:"signup_deadline"`
	Capacity       *int       `json:"capacity"`
	IsPublished    bool       `json:"is_published"`
}

// RegisterRequest is the payload for registering for, or canceling, an event.
type RegisterRequest struct {
	StudentID string `json:"student_id"`
}

// CountResponse carries the active registration count for an event.
type CountResponse struct {
	EventID uuid.UUID `json:"event_id"`
	Count   int       `json:"count"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegistrationResult summarises the outcome of a single registration attempt.
// Used by the concurrent registration tests.
type RegistrationResult struct {
	StudentID uuid.UUID
	Success   bool
	Error     error
}
