// Package settings loads the school roster from its JSON settings files.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
	"github.com/jwalitptl/comms-notebook/pkg/validator"
)

const (
	TeachersFile = "teachers.json"
	StudentsFile = "students.json"
	SubjectsFile = "subjects.json"
	GeneralFile  = "general.json"

	rosterKey = "roster"
)

// Provider hands out the current roster snapshot.
type Provider interface {
	Snapshot(ctx context.Context) (*model.Roster, error)
}

// Store reads the settings directory and caches the parsed roster for ttl.
// A missing file reads as empty; a malformed or invalid one is an error.
type Store struct {
	fsys     fs.FS
	cache    *cache.Cache
	validate validator.Validator
	log      *logger.Logger
	mu       sync.Mutex
}

func NewStore(dir string, ttl time.Duration, log *logger.Logger) *Store {
	return NewStoreFS(os.DirFS(dir), ttl, log)
}

func NewStoreFS(fsys fs.FS, ttl time.Duration, log *logger.Logger) *Store {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		fsys:     fsys,
		cache:    cache.New(ttl, 2*ttl),
		validate: validator.New(),
		log:      log,
	}
}

func (s *Store) Snapshot(ctx context.Context) (*model.Roster, error) {
	if r, ok := s.cache.Get(rosterKey); ok {
		return r.(*model.Roster), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.cache.Get(rosterKey); ok {
		return r.(*model.Roster), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := s.load()
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(rosterKey, r)
	s.log.Debug("roster loaded",
		"teachers", len(r.Teachers),
		"students", len(r.Students),
		"subjects", len(r.Subjects),
		"report_to", len(r.General.ReportTo),
	)
	return r, nil
}

// Refresh drops the cached roster so the next Snapshot rereads the files.
func (s *Store) Refresh() {
	s.cache.Delete(rosterKey)
}

func (s *Store) load() (*model.Roster, error) {
	var (
		teachers []model.Teacher
		students []model.Student
		subjects []model.Subject
		general  model.GeneralSettings
	)
	if err := s.readJSON(TeachersFile, &teachers); err != nil {
		return nil, err
	}
	if err := s.readJSON(StudentsFile, &students); err != nil {
		return nil, err
	}
	if err := s.readJSON(SubjectsFile, &subjects); err != nil {
		return nil, err
	}
	if err := s.readJSON(GeneralFile, &general); err != nil {
		return nil, err
	}

	for i := range teachers {
		if err := s.validate.Validate(teachers[i]); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", TeachersFile, i, err)
		}
	}
	for i := range students {
		if err := s.validate.Validate(students[i]); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", StudentsFile, i, err)
		}
	}
	for i := range subjects {
		if err := s.validate.Validate(subjects[i]); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", SubjectsFile, i, err)
		}
	}
	if err := s.validate.Validate(general); err != nil {
		return nil, fmt.Errorf("%s: %w", GeneralFile, err)
	}

	return model.NewRoster(teachers, students, subjects, general), nil
}

func (s *Store) readJSON(name string, dst interface{}) error {
	data, err := fs.ReadFile(s.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("settings file missing", "file", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// Static serves a fixed roster.
type Static struct {
	Roster *model.Roster
}

func (s Static) Snapshot(context.Context) (*model.Roster, error) {
	return s.Roster, nil
}
