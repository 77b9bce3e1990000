package report

import (
	"context"
	"time"

	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/pkg/errors"
	"github.com/jwalitptl/comms-notebook/pkg/timeutil"
)

// CommunicationQuerier is the read side of the communication store.
type CommunicationQuerier interface {
	Query(ctx context.Context, filter model.CommunicationFilter) ([]*model.Communication, error)
}

// DigestPolicy produces the summary of everything logged since the last
// digest, or since the start of today on the first run.
type DigestPolicy struct {
	comms    CommunicationQuerier
	cal      timeutil.Calendar
	renderer *Renderer
}

func NewDigestPolicy(comms CommunicationQuerier, cal timeutil.Calendar, renderer *Renderer) *DigestPolicy {
	return &DigestPolicy{comms: comms, cal: cal, renderer: renderer}
}

// Evaluate returns nil when a digest already went out today and nothing new
// has been logged since.
func (p *DigestPolicy) Evaluate(ctx context.Context, lastRunAt *time.Time, now time.Time, roster *model.Roster) (*model.EmailMessage, error) {
	startOfDay := p.cal.StartOfDay(now)

	from := startOfDay
	if lastRunAt != nil {
		from = *lastRunAt
	}

	records, err := p.comms.Query(ctx, model.CommunicationFilter{From: &from})
	if err != nil {
		return nil, errors.Store("query digest communications", err)
	}

	if len(records) == 0 && lastRunAt != nil && lastRunAt.After(startOfDay) {
		return nil, nil
	}

	html, err := p.renderer.Digest(now, records, roster)
	if err != nil {
		return nil, err
	}
	return &model.EmailMessage{
		Kind:    model.ReportDigest,
		Subject: digestSubject,
		HTML:    html,
		Count:   len(records),
	}, nil
}
