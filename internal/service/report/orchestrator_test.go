package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/comms-notebook/internal/email"
	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/internal/settings"
	apperrors "github.com/jwalitptl/comms-notebook/pkg/errors"
)

const from = "no-reply@school.test"

func TestOrchestratorFirstRunSendsEmptyDigest(t *testing.T) {
	f := newFixture(testRoster("direccion@school.test", "  "), from)
	now := day(3, 12)

	res, err := f.orch.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, &Result{Executed: true, Sent: 1}, res)

	sent := f.mailer.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"direccion@school.test"}, sent[0].To)
	assert.Equal(t, "no-reply@school.test", sent[0].From)
	assert.Equal(t, "Reportes", sent[0].FromName)
	assert.Equal(t, "Reporte diario de comunicaciones", sent[0].Subject)
	assert.Contains(t, sent[0].HTML, "Se han registrado 0 comunicaciones")

	stamp := model.FormatTimestamp(now)
	assert.Equal(t, map[string]string{
		model.WatermarkLastDigest:     stamp,
		model.WatermarkLastWeekly:     stamp,
		model.WatermarkLastCumulative: stamp,
	}, f.watermarks.Snapshot())
}

func TestOrchestratorNoRecipientsIsNoop(t *testing.T) {
	f := newFixture(testRoster(), from)
	f.add(comm("E001", "x", day(1, 9)), comm("E001", "x", day(2, 9)), comm("E001", "x", day(3, 9)))

	res, err := f.orch.Run(context.Background(), day(3, 12))
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Zero(t, res.Sent)
	assert.Empty(t, f.mailer.Messages())
	assert.Empty(t, f.watermarks.Snapshot())
}

func TestOrchestratorNoSenderIsNoop(t *testing.T) {
	f := newFixture(testRoster("direccion@school.test"), "")

	res, err := f.orch.Run(context.Background(), day(3, 12))
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Empty(t, f.mailer.Messages())
	assert.Empty(t, f.watermarks.Snapshot())
}

func TestOrchestratorStoreFailureAbortsTick(t *testing.T) {
	t.Run("communication query", func(t *testing.T) {
		f := newFixture(testRoster("direccion@school.test"), from)
		f.comms.Err = errors.New("connection reset")

		res, err := f.orch.Run(context.Background(), day(3, 12))
		require.Error(t, err)
		assert.Nil(t, res)
		assert.True(t, apperrors.IsStore(err))
		assert.Empty(t, f.mailer.Messages())
		assert.Empty(t, f.watermarks.Snapshot())
	})

	t.Run("watermark read", func(t *testing.T) {
		f := newFixture(testRoster("direccion@school.test"), from)
		f.watermarks.GetErr = errors.New("timeout")

		_, err := f.orch.Run(context.Background(), day(3, 12))
		require.Error(t, err)
		assert.True(t, apperrors.IsStore(err))
		assert.Empty(t, f.mailer.Messages())
	})

	t.Run("corrupt run stamp", func(t *testing.T) {
		f := newFixture(testRoster("direccion@school.test"), from)
		require.NoError(t, f.watermarks.Set(context.Background(), model.WatermarkLastWeekly, "yesterday"))

		_, err := f.orch.Run(context.Background(), day(3, 12))
		require.Error(t, err)
		assert.True(t, apperrors.IsStore(err))
		assert.Empty(t, f.mailer.Messages())
	})
}

func TestOrchestratorDigestSendFailureKeepsWatermark(t *testing.T) {
	f := newFixture(testRoster("direccion@school.test"), from)
	f.mailer.Fail = func(m email.Message) error {
		if m.Subject == digestSubject {
			return errors.New("421 try again later")
		}
		return nil
	}
	now := day(3, 12)

	res, err := f.orch.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, &Result{Executed: true, Failures: 1}, res)

	wm := f.watermarks.Snapshot()
	assert.NotContains(t, wm, model.WatermarkLastDigest)
	assert.Equal(t, model.FormatTimestamp(now), wm[model.WatermarkLastWeekly])
	assert.Equal(t, model.FormatTimestamp(now), wm[model.WatermarkLastCumulative])
}

func TestOrchestratorAlertSendFailureStillAdvances(t *testing.T) {
	f := newFixture(testRoster("direccion@school.test"), from)
	f.add(
		comm("E002", "Llegó tarde", day(1, 9)),
		comm("E002", "Llegó tarde", day(2, 9)),
		comm("E002", "Llegó tarde", day(3, 9)),
	)
	f.mailer.Fail = func(m email.Message) error {
		if strings.HasPrefix(m.Subject, "Alerta acumulativa") {
			return errors.New("mailbox full")
		}
		return nil
	}

	res, err := f.orch.Run(context.Background(), day(3, 12))
	require.NoError(t, err)
	assert.Equal(t, &Result{Executed: true, Sent: 2, Failures: 1}, res)

	key := model.NewCumulativeKey(2026, "E002", "Llegó tarde").String()
	assert.Equal(t, "3", f.watermarks.Snapshot()[key])
}

func TestOrchestratorDryRunLeavesWatermarks(t *testing.T) {
	f := newFixture(testRoster("direccion@school.test"), from)
	f.add(
		comm("E002", "Llegó tarde", day(1, 9)),
		comm("E002", "Llegó tarde", day(2, 9)),
		comm("E002", "Llegó tarde", day(3, 9)),
	)
	dryMailer := &email.Recorder{}
	r := testRenderer()
	dry := NewOrchestrator(
		NewDigestPolicy(f.comms, testCalendar, r),
		NewWeeklyPolicy(f.comms, testCalendar, r, DefaultWeeklyThreshold, DefaultWeeklyStep),
		NewCumulativePolicy(f.comms, testCalendar, r, DefaultCumulativeStep),
		DiscardWrites(f.watermarks),
		settings.Static{Roster: testRoster("direccion@school.test")},
		dryMailer,
		Config{Sender: Sender{Address: from, Name: "Reportes"}, SendConcurrency: 2},
		nil,
		nil,
	)

	res, err := dry.Run(context.Background(), day(3, 12))
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Contains(t, subjects(dryMailer.Messages()), "Alerta acumulativa: 3 comunicaciones de E002")
	assert.Empty(t, f.watermarks.Snapshot())

	// The real tick afterwards still sees every alert as new.
	res, err = f.orch.Run(context.Background(), day(3, 12))
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Contains(t, subjects(f.mailer.Messages()), "Alerta acumulativa: 3 comunicaciones de E002")
	key := model.NewCumulativeKey(2026, "E002", "Llegó tarde").String()
	assert.Equal(t, "3", f.watermarks.Snapshot()[key])
}

func TestOrchestratorWeeklyScenario(t *testing.T) {
	f := newFixture(testRoster("direccion@school.test"), from)
	f.add(
		comm("E001", "a", day(1, 9)),
		comm("E001", "b", day(2, 9)),
		comm("E001", "c", day(3, 9)),
		comm("E001", "d", day(4, 13)),
		comm("E001", "e", day(5, 9)),
		comm("E001", "f", day(5, 10)),
	)

	var weekly []string
	for d := 1; d <= 6; d++ {
		before := len(f.mailer.Messages())
		_, err := f.orch.Run(context.Background(), day(d, 12))
		require.NoError(t, err)
		for _, s := range subjects(f.mailer.Messages()[before:]) {
			if strings.HasPrefix(s, "Segunda alerta") {
				weekly = append(weekly, s)
			}
		}
	}

	assert.Equal(t, []string{
		"Segunda alerta: 3 comunicaciones de E001",
		"Segunda alerta: 6 comunicaciones de E001",
	}, weekly)
}

func TestOrchestratorSecondTickSameDaySkipsEmptyDigest(t *testing.T) {
	f := newFixture(testRoster("direccion@school.test"), from)
	f.add(comm("E001", "x", day(3, 9)))

	_, err := f.orch.Run(context.Background(), day(3, 12))
	require.NoError(t, err)
	res, err := f.orch.Run(context.Background(), day(3, 18))
	require.NoError(t, err)

	assert.True(t, res.Executed)
	assert.Zero(t, res.Sent)
	assert.Equal(t, []string{digestSubject}, subjects(f.mailer.Messages()))
}

func TestOrchestratorOverlappingTicks(t *testing.T) {
	f := newFixture(testRoster("direccion@school.test"), from)
	f.add(
		comm("E002", "Llegó tarde", day(1, 9)),
		comm("E002", "Llegó tarde", day(2, 9)),
		comm("E002", "Llegó tarde", day(3, 9)),
	)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Run(context.Background(), day(3, 12))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var cumulative int
	for _, s := range subjects(f.mailer.Messages()) {
		if strings.HasPrefix(s, "Alerta acumulativa") {
			cumulative++
		}
	}
	assert.Equal(t, 1, cumulative)
}

func TestStagedWatermarks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testRoster(), from)
	require.NoError(t, f.watermarks.Set(ctx, "k1", "1"))

	s := newStagedWatermarks(f.watermarks)
	require.NoError(t, s.Set(ctx, "k1", "4"))
	require.NoError(t, s.Set(ctx, "k2", "3"))

	v, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "4", v)
	assert.Equal(t, "1", f.watermarks.Snapshot()["k1"])

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, map[string]string{"k1": "4", "k2": "3"}, f.watermarks.Snapshot())
}
