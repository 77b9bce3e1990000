package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/comms-notebook/internal/email"
	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/internal/repository"
	"github.com/jwalitptl/comms-notebook/internal/settings"
	"github.com/jwalitptl/comms-notebook/pkg/errors"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
	"github.com/jwalitptl/comms-notebook/pkg/metrics"
)

// Result is the outcome of one tick. Executed is false when the tick was a
// no-op because recipients or the sender are not configured.
type Result struct {
	Executed bool `json:"executed"`
	Sent     int  `json:"sent"`
	Failures int  `json:"failures"`
}

// Sender is the envelope sender of every report mail.
type Sender struct {
	Address string
	Name    string
}

type Config struct {
	Sender Sender
	// SendConcurrency bounds parallel sends within one policy.
	SendConcurrency int
}

type WatermarkStore interface {
	repository.WatermarkReader
	repository.WatermarkWriter
}

// Orchestrator runs the three report policies for one tick and advances
// their watermarks after each policy's mail has been dispatched.
type Orchestrator struct {
	digest     *DigestPolicy
	weekly     *WeeklyPolicy
	cumulative *CumulativePolicy
	watermarks WatermarkStore
	roster     settings.Provider
	mailer     email.Service
	cfg        Config
	metrics    *metrics.Metrics
	log        *logger.Logger

	// mu serializes ticks so an overlapping trigger waits for the current one.
	mu sync.Mutex
}

func NewOrchestrator(
	digest *DigestPolicy,
	weekly *WeeklyPolicy,
	cumulative *CumulativePolicy,
	watermarks WatermarkStore,
	roster settings.Provider,
	mailer email.Service,
	cfg Config,
	m *metrics.Metrics,
	log *logger.Logger,
) *Orchestrator {
	if cfg.SendConcurrency <= 0 {
		cfg.SendConcurrency = 4
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		digest:     digest,
		weekly:     weekly,
		cumulative: cumulative,
		watermarks: watermarks,
		roster:     roster,
		mailer:     mailer,
		cfg:        cfg,
		metrics:    m,
		log:        log,
	}
}

// Run executes one tick at now. A store error aborts the tick and is
// returned; send errors are counted in Result.Failures and logged.
func (o *Orchestrator) Run(ctx context.Context, now time.Time) (res *Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	defer func() {
		outcome := "executed"
		switch {
		case err != nil:
			outcome = "error"
		case !res.Executed:
			outcome = "noop"
		}
		o.metrics.ObserveTick(outcome, time.Since(start))
	}()

	roster, err := o.roster.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}

	recipients := roster.ReportRecipients()
	if len(recipients) == 0 {
		o.log.Warn("report tick skipped", "reason", errors.Configuration("no report recipients configured").Error())
		return &Result{}, nil
	}
	if o.cfg.Sender.Address == "" {
		o.log.Warn("report tick skipped", "reason", errors.Configuration("no from address configured").Error())
		return &Result{}, nil
	}

	lastDigest, err := o.readTimestamp(ctx, model.WatermarkLastDigest)
	if err != nil {
		return nil, err
	}
	lastWeekly, err := o.readTimestamp(ctx, model.WatermarkLastWeekly)
	if err != nil {
		return nil, err
	}
	// The cumulative policy keys off per-pair counters; its run stamp is read
	// only so a corrupt value fails the tick like the other two.
	if _, err := o.readTimestamp(ctx, model.WatermarkLastCumulative); err != nil {
		return nil, err
	}

	var (
		digestMsg      *model.EmailMessage
		weeklyMsgs     []*model.EmailMessage
		cumulativeMsgs []*model.EmailMessage
		staged         = newStagedWatermarks(o.watermarks)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		digestMsg, err = o.digest.Evaluate(gctx, lastDigest, now, roster)
		return err
	})
	g.Go(func() error {
		var err error
		weeklyMsgs, err = o.weekly.Evaluate(gctx, lastWeekly, now, roster)
		return err
	})
	g.Go(func() error {
		var err error
		cumulativeMsgs, err = o.cumulative.Evaluate(gctx, now, roster, staged, staged)
		return err
	})
	if err := g.Wait(); err != nil {
		o.log.Error(err, "report evaluation failed")
		return nil, err
	}

	res = &Result{Executed: true}
	stamp := model.FormatTimestamp(now)

	if digestMsg != nil {
		o.metrics.ObserveReports(string(model.ReportDigest), 1)
		sent, failed := o.dispatch(ctx, recipients, []*model.EmailMessage{digestMsg})
		res.Sent += sent
		res.Failures += failed
		if sent == 1 {
			if err := o.writeWatermark(ctx, model.WatermarkLastDigest, stamp); err != nil {
				return nil, err
			}
		}
	}

	o.metrics.ObserveReports(string(model.ReportWeekly), len(weeklyMsgs))
	sent, failed := o.dispatch(ctx, recipients, weeklyMsgs)
	res.Sent += sent
	res.Failures += failed
	if err := o.writeWatermark(ctx, model.WatermarkLastWeekly, stamp); err != nil {
		return nil, err
	}

	o.metrics.ObserveReports(string(model.ReportCumulative), len(cumulativeMsgs))
	sent, failed = o.dispatch(ctx, recipients, cumulativeMsgs)
	res.Sent += sent
	res.Failures += failed
	if err := staged.Commit(ctx); err != nil {
		return nil, errors.Store("write cumulative watermark", err)
	}
	if err := o.writeWatermark(ctx, model.WatermarkLastCumulative, stamp); err != nil {
		return nil, err
	}

	o.log.Info("report tick finished",
		"digest", digestMsg != nil,
		"weekly", len(weeklyMsgs),
		"cumulative", len(cumulativeMsgs),
		"sent", res.Sent,
		"failures", res.Failures,
	)
	return res, nil
}

func (o *Orchestrator) readTimestamp(ctx context.Context, key string) (*time.Time, error) {
	raw, ok, err := o.watermarks.Get(ctx, key)
	if err != nil {
		return nil, errors.Store("read watermark "+key, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	t, err := model.ParseTimestamp(raw)
	if err != nil {
		return nil, errors.Store("read watermark "+key, err)
	}
	return &t, nil
}

func (o *Orchestrator) writeWatermark(ctx context.Context, key, value string) error {
	if err := o.watermarks.Set(ctx, key, value); err != nil {
		return errors.Store("write watermark "+key, err)
	}
	return nil
}

// dispatch sends every message to recipients with bounded parallelism and
// returns how many were sent and how many failed. It waits for all sends.
func (o *Orchestrator) dispatch(ctx context.Context, recipients []string, msgs []*model.EmailMessage) (sent, failed int) {
	if len(msgs) == 0 {
		return 0, 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		semaphore = make(chan struct{}, o.cfg.SendConcurrency)
	)

	for _, m := range msgs {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(m *model.EmailMessage) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := o.mailer.Send(ctx, email.Message{
				To:       recipients,
				From:     o.cfg.Sender.Address,
				FromName: o.cfg.Sender.Name,
				Subject:  m.Subject,
				HTML:     m.HTML,
			})
			o.metrics.ObserveEmail(string(m.Kind), err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				o.log.Error(err, "failed to send report email",
					"kind", string(m.Kind),
					"subject", m.Subject,
					"student", m.StudentEnrolment,
				)
				return
			}
			sent++
			o.log.Debug("report email sent", "kind", string(m.Kind), "subject", m.Subject)
		}(m)
	}

	wg.Wait()
	return sent, failed
}

// stagedWatermarks buffers writes so that per-pair counters reach the store
// only after the policy's mail has been dispatched. Reads see staged values.
type stagedWatermarks struct {
	store  WatermarkStore
	mu     sync.Mutex
	keys   []string
	values map[string]string
}

func newStagedWatermarks(store WatermarkStore) *stagedWatermarks {
	return &stagedWatermarks{store: store, values: make(map[string]string)}
}

func (s *stagedWatermarks) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	v, ok := s.values[key]
	s.mu.Unlock()
	if ok {
		return v, true, nil
	}
	return s.store.Get(ctx, key)
}

func (s *stagedWatermarks) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
	return nil
}

// Commit writes staged values in first-write order.
func (s *stagedWatermarks) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if err := s.store.Set(ctx, k, s.values[k]); err != nil {
			return err
		}
	}
	s.keys = nil
	s.values = make(map[string]string)
	return nil
}

// DiscardWrites wraps store so reads pass through and writes are dropped.
// Dry runs use it to evaluate a tick without moving any watermark.
func DiscardWrites(store WatermarkStore) WatermarkStore {
	return discardWrites{WatermarkReader: store}
}

type discardWrites struct {
	repository.WatermarkReader
}

func (discardWrites) Set(context.Context, string, string) error { return nil }
