package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jwalitptl/comms-notebook/pkg/logger"
)

type TriggerConfig struct {
	URL           string
	Token         string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Trigger calls the report endpoint the way an external scheduler would.
type Trigger struct {
	client *http.Client
	cfg    TriggerConfig
	log    *logger.Logger
}

func NewTrigger(cfg TriggerConfig, log *logger.Logger) *Trigger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Trigger{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		log:    log,
	}
}

// StatusError is a non-200 answer from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trigger returned %d: %s", e.Code, e.Body)
}

// Fire calls the endpoint, retrying transport errors and 5xx answers with
// exponential backoff. 4xx answers are not retried. It returns the boolean
// the endpoint answered with.
func (t *Trigger) Fire(ctx context.Context) (bool, error) {
	var executed bool
	attempt := 0

	op := func() error {
		attempt++
		ok, err := t.call(ctx)
		if err != nil {
			if se, isStatus := err.(*StatusError); isStatus && se.Code < 500 {
				return backoff.Permanent(err)
			}
			t.log.Warn("report trigger attempt failed", "attempt", attempt, "error", err.Error())
			return err
		}
		executed = ok
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.cfg.RetryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.cfg.RetryAttempts-1)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return false, err
	}
	return executed, nil
}

func (t *Trigger) call(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.URL, nil)
	if err != nil {
		return false, backoff.Permanent(fmt.Errorf("failed to build trigger request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.Token)

	resp, err := t.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call trigger: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false, fmt.Errorf("failed to read trigger response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var executed bool
	if err := json.Unmarshal(body, &executed); err != nil {
		return false, fmt.Errorf("unexpected trigger response %q: %w", body, err)
	}
	return executed, nil
}
