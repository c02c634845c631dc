package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/testdb"
)

func TestCreateEventValidation(t *testing.T) {
	// Validation runs before any query, so a nil repository is never touched.
	svc := NewEventService(nil)
	starts := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	late := starts.Add(time.Hour)

	tests := []struct {
		name string
		req  model.CreateEventRequest
		msg  string
	}{
		{"blank title", model.CreateEventRequest{Title: "   ", StartsAt: starts}, "title is required"},
		{"missing start", model.CreateEventRequest{Title: "Talk"}, "starts_at is required"},
		{"negative capacity", model.CreateEventRequest{Title: "Talk", StartsAt: starts, Capacity: testdb.Cap(-1)}, "negative"},
		{"huge capacity", model.CreateEventRequest{Title: "Talk", StartsAt: starts, Capacity: testdb.Cap(100_001)}, "exceed"},
		{"deadline after start", model.CreateEventRequest{Title: "Talk", StartsAt: starts, SignupDeadline: &late}, "signup_deadline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateEvent(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidInput)
			require.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestEventServiceRoundTrip(t *testing.T) {
	pool := testdb.New(t)
	svc := NewEventService(repository.NewEventRepository(pool))
	ctx := context.Background()

	starts := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	deadline := starts
	created, err := svc.CreateEvent(ctx, model.CreateEventRequest{
		Title:          "  Robotics demo ",
		StartsAt:       starts,
		SignupDeadline: &deadline,
		Capacity:       testdb.Cap(0),
		IsPublished:    true,
	})
	require.NoError(t, err)
	require.Equal(t, "Robotics demo", created.Title)

	got, err := svc.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 0, *got.Capacity)
	require.Equal(t, 0, *got.RemainingSeats)

	events, err := svc.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = svc.GetEvent(ctx, uuid.New())
	require.ErrorIs(t, err, repository.ErrNotFound)
}
