package report

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/comms-notebook/internal/email"
	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/internal/repository/memory"
	"github.com/jwalitptl/comms-notebook/internal/settings"
	"github.com/jwalitptl/comms-notebook/pkg/timeutil"
)

// Sunday 11 October 2026 opens the test week.
var weekStart = time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC)

func day(d, hour int) time.Time {
	return weekStart.AddDate(0, 0, d).Add(time.Duration(hour) * time.Hour)
}

var testCalendar = timeutil.Calendar{Location: time.UTC, WeekStart: time.Sunday}

func testRenderer() *Renderer {
	return MustRenderer(testCalendar, "https://notebook.test")
}

func testRoster(reportTo ...string) *model.Roster {
	return model.NewRoster(
		[]model.Teacher{{Name: "Laura Gómez", Email: "laura@school.test"}},
		[]model.Student{
			{Name: "Juan Pérez", Enrolment: "E001", CoursingYear: 3},
			{Name: "Ana Ruiz", Enrolment: "E002", CoursingYear: 5},
		},
		[]model.Subject{{Name: "Matemática", Code: "MAT3", CourseYear: 3}},
		model.GeneralSettings{ReportTo: reportTo},
	)
}

func comm(enrolment, message string, ts time.Time) *model.Communication {
	return &model.Communication{
		ID:               uuid.New(),
		StudentEnrolment: enrolment,
		SubjectCode:      "MAT3",
		TeacherEmail:     "laura@school.test",
		Message:          message,
		Timestamp:        ts,
	}
}

type fixture struct {
	comms      *memory.CommunicationStore
	watermarks *memory.WatermarkStore
	mailer     *email.Recorder
	orch       *Orchestrator
}

func newFixture(roster *model.Roster, from string) *fixture {
	f := &fixture{
		comms:      memory.NewCommunicationStore(),
		watermarks: memory.NewWatermarkStore(),
		mailer:     &email.Recorder{},
	}
	r := testRenderer()
	f.orch = NewOrchestrator(
		NewDigestPolicy(f.comms, testCalendar, r),
		NewWeeklyPolicy(f.comms, testCalendar, r, DefaultWeeklyThreshold, DefaultWeeklyStep),
		NewCumulativePolicy(f.comms, testCalendar, r, DefaultCumulativeStep),
		f.watermarks,
		settings.Static{Roster: roster},
		f.mailer,
		Config{Sender: Sender{Address: from, Name: "Reportes"}, SendConcurrency: 2},
		nil,
		nil,
	)
	return f
}

func (f *fixture) add(cs ...*model.Communication) {
	for _, c := range cs {
		_ = f.comms.Create(context.Background(), c)
	}
}

func subjects(msgs []email.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Subject)
	}
	return out
}
