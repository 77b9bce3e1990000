package report

import (
	"context"
	"time"

	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/pkg/errors"
	"github.com/jwalitptl/comms-notebook/pkg/timeutil"
)

const (
	DefaultWeeklyThreshold = 3
	DefaultWeeklyStep      = 3
	DefaultCumulativeStep  = 3
)

// WeeklyPolicy escalates students with Threshold or more communications in
// the current week. A student already escalated fires again only when the
// weekly count reaches the next multiple of Step.
type WeeklyPolicy struct {
	comms     CommunicationQuerier
	cal       timeutil.Calendar
	renderer  *Renderer
	threshold int
	step      int
}

func NewWeeklyPolicy(comms CommunicationQuerier, cal timeutil.Calendar, renderer *Renderer, threshold, step int) *WeeklyPolicy {
	if threshold <= 0 {
		threshold = DefaultWeeklyThreshold
	}
	if step <= 0 {
		step = DefaultWeeklyStep
	}
	return &WeeklyPolicy{comms: comms, cal: cal, renderer: renderer, threshold: threshold, step: step}
}

// Evaluate scans the current week up to now. Records timestamped before the
// later of lastRunAt and the week start were covered by a previous tick.
func (p *WeeklyPolicy) Evaluate(ctx context.Context, lastRunAt *time.Time, now time.Time, roster *model.Roster) ([]*model.EmailMessage, error) {
	weekStart := p.cal.StartOfWeek(now)

	cutoff := weekStart
	if lastRunAt != nil && lastRunAt.After(weekStart) {
		cutoff = *lastRunAt
	}

	// The window ends at now: a record stamped ahead of the tick is counted by
	// the first tick at or after its timestamp, never twice.
	records, err := p.comms.Query(ctx, model.CommunicationFilter{From: &weekStart, To: &now})
	if err != nil {
		return nil, errors.Store("query weekly communications", err)
	}

	var out []*model.EmailMessage
	for _, g := range groupByStudent(records) {
		count := len(g.records)
		prior := 0
		for _, c := range g.records {
			if c.Timestamp.Before(cutoff) {
				prior++
			}
		}
		if !p.shouldEscalate(prior, count) {
			continue
		}

		html, err := p.renderer.Weekly(now, g.enrolment, g.records, roster)
		if err != nil {
			return nil, err
		}
		out = append(out, &model.EmailMessage{
			Kind:             model.ReportWeekly,
			Subject:          weeklySubject(count, g.enrolment),
			HTML:             html,
			StudentEnrolment: g.enrolment,
			Count:            count,
		})
	}
	return out, nil
}

// shouldEscalate fires when count crosses the threshold or a new multiple of
// step that prior had not reached.
func (p *WeeklyPolicy) shouldEscalate(prior, count int) bool {
	if count < p.threshold {
		return false
	}
	if prior < p.threshold {
		return true
	}
	return count/p.step > prior/p.step
}

type studentGroup struct {
	enrolment string
	records   []*model.Communication
}

// groupByStudent keeps first-seen order of enrolments so output is stable.
func groupByStudent(records []*model.Communication) []studentGroup {
	idx := make(map[string]int)
	var groups []studentGroup
	for _, c := range records {
		i, ok := idx[c.StudentEnrolment]
		if !ok {
			i = len(groups)
			idx[c.StudentEnrolment] = i
			groups = append(groups, studentGroup{enrolment: c.StudentEnrolment})
		}
		groups[i].records = append(groups[i].records, c)
	}
	return groups
}

type messageGroup struct {
	message string
	records []*model.Communication
}

func groupByMessage(records []*model.Communication) []messageGroup {
	idx := make(map[string]int)
	var groups []messageGroup
	for _, c := range records {
		i, ok := idx[c.Message]
		if !ok {
			i = len(groups)
			idx[c.Message] = i
			groups = append(groups, messageGroup{message: c.Message})
		}
		groups[i].records = append(groups[i].records, c)
	}
	return groups
}
