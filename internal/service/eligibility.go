package service

import (
	"time"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
)

// CheckEligibility decides whether an event described by snap accepts
// registrations at now. A deadline equal to now is still open.
// Capacity is not checked here; it needs the live count.
func CheckEligibility(snap model.EventSnapshot, now time.Time) error {
	if !snap.IsPublished {
		return repository.ErrNotPublished
	}
	if snap.SignupDeadline != nil && snap.SignupDeadline.Before(now) {
		return repository.ErrDeadlinePassed
	}
	return nil
}
