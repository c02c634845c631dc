package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
)

func TestCheckEligibility(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name string
		snap model.EventSnapshot
		want error
	}{
		{"published without deadline", model.EventSnapshot{IsPublished: true}, nil},
		{"deadline in the future", model.EventSnapshot{IsPublished: true, SignupDeadline: at(time.Hour)}, nil},
		{"deadline equal to now", model.EventSnapshot{IsPublished: true, SignupDeadline: at(0)}, nil},
		{"deadline one nanosecond ago", model.EventSnapshot{IsPublished: true, SignupDeadline: at(-time.Nanosecond)}, repository.ErrDeadlinePassed},
		{"deadline one second ago", model.EventSnapshot{IsPublished: true, SignupDeadline: at(-time.Second)}, repository.ErrDeadlinePassed},
		{"unpublished", model.EventSnapshot{SignupDeadline: at(time.Hour)}, repository.ErrNotPublished},
		{"unpublished and past deadline", model.EventSnapshot{SignupDeadline: at(-time.Hour)}, repository.ErrNotPublished},
		{"full capacity is not checked", model.EventSnapshot{IsPublished: true, Capacity: new(int)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckEligibility(tt.snap, now)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, repository.ErrPrecondition)
		})
	}
}
