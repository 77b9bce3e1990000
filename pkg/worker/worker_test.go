package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrigger(url string, attempts int) *Trigger {
	return NewTrigger(TriggerConfig{
		URL:           url,
		Token:         "s3cret",
		Timeout:       time.Second,
		RetryAttempts: attempts,
		RetryDelay:    time.Millisecond,
	}, nil)
}

func TestTriggerSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte("true"))
	}))
	defer srv.Close()

	executed, err := newTrigger(srv.URL, 1).Fire(context.Background())
	require.NoError(t, err)
	assert.True(t, executed)
}

func TestTriggerRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("false"))
	}))
	defer srv.Close()

	executed, err := newTrigger(srv.URL, 3).Fire(context.Background())
	require.NoError(t, err)
	assert.False(t, executed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTriggerDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`"Unauthorized"`))
	}))
	defer srv.Close()

	_, err := newTrigger(srv.URL, 5).Fire(context.Background())
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTriggerGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTrigger(srv.URL, 2).Fire(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

type jobFunc func(ctx context.Context) (bool, error)

func (f jobFunc) Fire(ctx context.Context) (bool, error) { return f(ctx) }

func TestSchedulerNextFire(t *testing.T) {
	loc := time.UTC
	s, err := NewScheduler("0 0 8,15 * * 1-5", loc, jobFunc(func(context.Context) (bool, error) { return true, nil }), nil)
	require.NoError(t, err)

	// Friday 16:00 rolls over to Monday 08:00.
	fri := time.Date(2026, 10, 16, 16, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 10, 19, 8, 0, 0, 0, loc), s.Next(fri))

	mon := time.Date(2026, 10, 19, 9, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 10, 19, 15, 0, 0, 0, loc), s.Next(mon))
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	_, err := NewScheduler("every day", time.UTC, jobFunc(nil), nil)
	assert.Error(t, err)
}

func TestSchedulerRunsJob(t *testing.T) {
	fired := make(chan struct{}, 1)
	s, err := NewScheduler("* * * * * *", time.UTC, jobFunc(func(context.Context) (bool, error) {
		select {
		case fired <- struct{}{}:
		default:
		}
		return true, nil
	}), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
	cancel()
	<-done
}
