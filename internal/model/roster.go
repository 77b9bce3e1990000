package model

import "strings"

const (
	MinCourseYear = 1
	MaxCourseYear = 7
)

type Teacher struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"required,email"`
}

type Student struct {
	Name         string `json:"name"`
	Enrolment    string `json:"enrolment"`
	MotherEmail  string `json:"motherEmail,omitempty"`
	FatherEmail  string `json:"fatherEmail,omitempty"`
	CoursingYear int    `json:"coursingYear" validate:"min=1,max=7"`
}

type Subject struct {
	Name       string   `json:"name"`
	Code       string   `json:"code"`
	Teachers   []string `json:"teachers"`
	CourseYear int      `json:"courseYear" validate:"min=1,max=7"`
}

// GeneralSettings is general.json: the message categories, the admins and
// the addresses that receive the periodic reports.
type GeneralSettings struct {
	Messages []string `json:"messages"`
	Admins   []string `json:"admins,omitempty"`
	ReportTo []string `json:"reportTo,omitempty" validate:"omitempty,dive,email"`
}

// Roster is an immutable snapshot of the settings files with lookup indexes.
// Build it with NewRoster; never mutate it after construction.
type Roster struct {
	Teachers []Teacher
	Students []Student
	Subjects []Subject
	General  GeneralSettings

	studentsByEnrolment map[string]*Student
	teachersByEmail     map[string]*Teacher
	subjectsByCode      map[string]*Subject
}

func NewRoster(teachers []Teacher, students []Student, subjects []Subject, general GeneralSettings) *Roster {
	r := &Roster{
		Teachers:            teachers,
		Students:            students,
		Subjects:            subjects,
		General:             general,
		studentsByEnrolment: make(map[string]*Student, len(students)),
		teachersByEmail:     make(map[string]*Teacher, len(teachers)),
		subjectsByCode:      make(map[string]*Subject, len(subjects)),
	}
	for i := range r.Students {
		r.studentsByEnrolment[strings.ToLower(r.Students[i].Enrolment)] = &r.Students[i]
	}
	for i := range r.Teachers {
		r.teachersByEmail[r.Teachers[i].Email] = &r.Teachers[i]
	}
	for i := range r.Subjects {
		r.subjectsByCode[r.Subjects[i].Code] = &r.Subjects[i]
	}
	return r
}

// Student looks an enrolment up case-insensitively.
func (r *Roster) Student(enrolment string) (*Student, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.studentsByEnrolment[strings.ToLower(enrolment)]
	return s, ok
}

func (r *Roster) Teacher(email string) (*Teacher, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.teachersByEmail[email]
	return t, ok
}

func (r *Roster) Subject(code string) (*Subject, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.subjectsByCode[code]
	return s, ok
}

// ReportRecipients returns the non-blank report addresses.
func (r *Roster) ReportRecipients() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.General.ReportTo))
	for _, e := range r.General.ReportTo {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
