package model

type ReportKind string

const (
	ReportDigest     ReportKind = "digest"
	ReportWeekly     ReportKind = "weekly"
	ReportCumulative ReportKind = "cumulative"
)

// EmailMessage is produced by a report policy. Recipients and sender are
// resolved by the orchestrator, never by the policy.
type EmailMessage struct {
	Kind    ReportKind
	Subject string
	HTML    string
	// StudentEnrolment is set for per-student alerts.
	StudentEnrolment string
	Count            int
}
