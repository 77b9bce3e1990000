package report

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/internal/repository"
	"github.com/jwalitptl/comms-notebook/pkg/errors"
	"github.com/jwalitptl/comms-notebook/pkg/timeutil"
)

// CumulativePolicy alerts when a student collects Step more communications
// with the same message during the calendar year than were already alerted.
type CumulativePolicy struct {
	comms    CommunicationQuerier
	cal      timeutil.Calendar
	renderer *Renderer
	step     int
}

func NewCumulativePolicy(comms CommunicationQuerier, cal timeutil.Calendar, renderer *Renderer, step int) *CumulativePolicy {
	if step <= 0 {
		step = DefaultCumulativeStep
	}
	return &CumulativePolicy{comms: comms, cal: cal, renderer: renderer, step: step}
}

// Evaluate scans the whole year. For each (student, message) pair that
// alerts, the new total is written to w before moving on to the next pair.
func (p *CumulativePolicy) Evaluate(ctx context.Context, now time.Time, roster *model.Roster, r repository.WatermarkReader, w repository.WatermarkWriter) ([]*model.EmailMessage, error) {
	yearStart := p.cal.StartOfYear(now)
	year := yearStart.Year()

	records, err := p.comms.Query(ctx, model.CommunicationFilter{From: &yearStart})
	if err != nil {
		return nil, errors.Store("query cumulative communications", err)
	}

	var out []*model.EmailMessage
	for _, sg := range groupByStudent(records) {
		for _, mg := range groupByMessage(sg.records) {
			count := len(mg.records)
			key := model.NewCumulativeKey(year, sg.enrolment, mg.message).String()

			raw, _, err := r.Get(ctx, key)
			if err != nil {
				return nil, errors.Store("read cumulative watermark", err)
			}
			already, err := model.ParseCount(raw)
			if err != nil {
				return nil, errors.Store("read cumulative watermark", fmt.Errorf("key %s: %w", key, err))
			}

			if count-already < p.step {
				continue
			}

			html, err := p.renderer.Cumulative(year, sg.enrolment, mg.message, mg.records, roster)
			if err != nil {
				return nil, err
			}
			if err := w.Set(ctx, key, strconv.Itoa(count)); err != nil {
				return nil, errors.Store("write cumulative watermark", err)
			}
			out = append(out, &model.EmailMessage{
				Kind:             model.ReportCumulative,
				Subject:          cumulativeSubject(count, sg.enrolment),
				HTML:             html,
				StudentEnrolment: sg.enrolment,
				Count:            count,
			})
		}
	}
	return out, nil
}
