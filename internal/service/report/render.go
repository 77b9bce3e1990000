package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/pkg/timeutil"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>Reporte de comunicaciones</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
* { font-family: sans-serif; box-sizing: border-box; }
p { padding: 0; margin: 0; text-overflow: ellipsis; }
a { text-decoration: none; display: block; color: #0284c7; }
</style>
</head>
<body>
{{- with .Summary}}
<p>{{.}}</p>
{{- end}}
{{- with .Title}}
<h1>{{.}}</h1>
{{- end}}
{{- with .Detail}}
<p>{{.}}</p>
{{- end}}
{{- with .Pre}}
<pre style="background-color: rgba(127,127,127,0.2); padding: 3px">{{.}}</pre>
{{- end}}
{{- if .Rows}}
<div>
<h2>Comunicaciones</h2>
{{- range $i, $r := .Rows}}
<a style="background-color: {{if even $i}}rgba(127, 127, 127, 0.1){{else}}rgba(127, 127, 127, 0.2){{end}}; padding: 10px; white-space: nowrap; overflow: hidden" href="{{$r.Link}}">
<p style="font-weight: bold; font-size: 18px">{{$r.Teacher}} &rarr; {{$r.Enrolment}} - {{$r.Student}}</p>
<p style="padding: 2px 0">{{$r.Message}} &rarr; {{$r.ActionTaken}}</p>
<p style="font-size: 14px">{{$r.Comment}}</p>
<p style="font-size: 14px">{{$r.CoursingYear}}° año - {{$r.SubjectCode}}</p>
<p style="font-size: 12px">{{$r.When}}</p>
</a>
{{- end}}
</div>
{{- end}}
</body>
</html>
`

// page is the data behind one report mail. Summary, Title, Detail and Pre
// are optional header blocks.
type page struct {
	Summary string
	Title   string
	Detail  string
	Pre     string
	Rows    []row
}

type row struct {
	Link         string
	Teacher      string
	Enrolment    string
	Student      string
	Message      string
	ActionTaken  string
	Comment      string
	CoursingYear string
	SubjectCode  string
	When         string
}

// Renderer turns communications into the HTML report body.
type Renderer struct {
	tmpl     *template.Template
	cal      timeutil.Calendar
	linkBase string
}

func NewRenderer(cal timeutil.Calendar, linkBase string) (*Renderer, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"even": func(i int) bool { return i%2 == 0 },
	}).Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}
	return &Renderer{
		tmpl:     tmpl,
		cal:      cal,
		linkBase: strings.TrimRight(linkBase, "/"),
	}, nil
}

// MustRenderer is NewRenderer for callers with a known-good template.
func MustRenderer(cal timeutil.Calendar, linkBase string) *Renderer {
	r, err := NewRenderer(cal, linkBase)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Renderer) render(p page, records []*model.Communication, roster *model.Roster) (string, error) {
	p.Rows = make([]row, 0, len(records))
	for _, c := range records {
		p.Rows = append(p.Rows, r.row(c, roster))
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) row(c *model.Communication, roster *model.Roster) row {
	out := row{
		Link:        r.linkBase + "/comunicaciones/" + c.ID.String(),
		Teacher:     c.TeacherEmail,
		Enrolment:   c.StudentEnrolment,
		Message:     c.Message,
		ActionTaken: c.ActionTakenText(),
		Comment:     c.CommentText(),
		SubjectCode: c.SubjectCode,
		When:        r.cal.In(c.Timestamp).Format("02/01/2006 15:04"),
	}
	if t, ok := roster.Teacher(c.TeacherEmail); ok && t.Name != "" {
		out.Teacher = t.Name
	}
	if s, ok := roster.Student(c.StudentEnrolment); ok {
		out.Student = s.Name
		out.CoursingYear = strconv.Itoa(s.CoursingYear)
	}
	return out
}

func (r *Renderer) Digest(now time.Time, records []*model.Communication, roster *model.Roster) (string, error) {
	return r.render(page{
		Summary: fmt.Sprintf("Se han registrado %d comunicaciones el día %s", len(records), r.cal.FormatDate(now)),
	}, records, roster)
}

func (r *Renderer) Weekly(now time.Time, enrolment string, records []*model.Communication, roster *model.Roster) (string, error) {
	return r.render(page{
		Title:  fmt.Sprintf("Alerta %d comunicaciones de %s", len(records), enrolment),
		Detail: fmt.Sprintf("El estudiante %s registró %d en la última semana al día %s", enrolment, len(records), r.cal.FormatDate(now)),
	}, records, roster)
}

func (r *Renderer) Cumulative(year int, enrolment, message string, records []*model.Communication, roster *model.Roster) (string, error) {
	return r.render(page{
		Title:  fmt.Sprintf("Alerta acumulativa %d comunicaciones de %s", len(records), enrolment),
		Detail: fmt.Sprintf("El estudiante %s registró %d comunicaciones en el año %d con el mismo mensaje", enrolment, len(records), year),
		Pre:    message,
	}, records, roster)
}

const digestSubject = "Reporte diario de comunicaciones"

func weeklySubject(count int, enrolment string) string {
	return fmt.Sprintf("Segunda alerta: %d comunicaciones de %s", count, enrolment)
}

func cumulativeSubject(count int, enrolment string) string {
	return fmt.Sprintf("Alerta acumulativa: %d comunicaciones de %s", count, enrolment)
}
