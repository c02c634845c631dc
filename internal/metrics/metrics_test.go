package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordRegistration(t *testing.T) {
	before := testutil.ToFloat64(RegistrationOps.WithLabelValues("register", OutcomeCreated))

	RecordRegistration("register", OutcomeCreated, time.Now().Add(-20*time.Millisecond))
	RecordRegistration("register", OutcomeCreated, time.Now())

	after := testutil.ToFloat64(RegistrationOps.WithLabelValues("register", OutcomeCreated))
	require.Equal(t, before+2, after)
	require.Positive(t, testutil.CollectAndCount(RegistrationDuration))
}

func TestRecordRejection(t *testing.T) {
	before := testutil.ToFloat64(Rejections.WithLabelValues("no seats"))
	RecordRejection("no seats")
	require.Equal(t, before+1, testutil.ToFloat64(Rejections.WithLabelValues("no seats")))
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/events/{id}", "404"))
	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/events/{id}", "404"))
	require.Equal(t, before+3, after)
	require.Zero(t, testutil.ToFloat64(HTTPRequestsInFlight))
}

func TestHTTPMiddlewareDefaultsToOK(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200")))
}

func TestDBCollectorStopsWithContext(t *testing.T) {
	c := NewDBCollector(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestRegistryGathers(t *testing.T) {
	families, err := Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
