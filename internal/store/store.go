package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drawalign/drawalign/internal/calib"
)

// ErrNotFound is returned when a project ID does not exist.
var ErrNotFound = errors.New("project not found")

// Store keeps each project as projects/<id>/project.json under the data
// directory. Writes go through a mutex and land via a temp-file rename, so a
// calibration snapshot is always replaced atomically and readers never see a
// half-written document.
type Store struct {
	dir string

	mu     sync.Mutex
	nextID int
}

// Open prepares the data directory and scans it for the next free ID.
func Open(dir string) (*Store, error) {
	root := filepath.Join(dir, "projects")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}

	maxID := 0
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil {
			log.Warn().Str("dir", e.Name()).Msg("Skipping non-numeric project directory")
			continue
		}
		if id > maxID {
			maxID = id
		}
	}

	log.Info().Str("dir", dir).Int("projects", len(entries)).Msg("Store opened")

	return &Store{dir: dir, nextID: maxID + 1}, nil
}

func (s *Store) projectPath(id int) string {
	return filepath.Join(s.dir, "projects", strconv.Itoa(id), "project.json")
}

// Create makes a new project with default calibration.
func (s *Store) Create(name, description string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := &Project{
		ID:          s.nextID,
		Name:        name,
		Description: description,
		Created:     now,
		Updated:     now,
		Calibration: calib.DefaultState(),
	}

	if err := s.write(p); err != nil {
		return nil, err
	}
	s.nextID++

	log.Info().Int("id", p.ID).Str("name", p.Name).Msg("Project created")
	return p, nil
}

// Get loads a project by ID.
func (s *Store) Get(id int) (*Project, error) {
	data, err := os.ReadFile(s.projectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil, err
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("project %d is corrupt: %w", id, err)
	}
	return &p, nil
}

// List loads all projects, newest first.
func (s *Store) List() ([]*Project, error) {
	root := filepath.Join(s.dir, "projects")
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var projects []*Project
	for _, e := range entries {
		id, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		p, err := s.Get(id)
		if err != nil {
			log.Warn().Err(err).Int("id", id).Msg("Skipping unreadable project")
			continue
		}
		projects = append(projects, p)
	}

	sort.Slice(projects, func(i, j int) bool {
		if !projects[i].Created.Equal(projects[j].Created) {
			return projects[i].Created.After(projects[j].Created)
		}
		return projects[i].ID > projects[j].ID
	})

	return projects, nil
}

// Save persists a project, bumping its updated timestamp.
func (s *Store) Save(p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Updated = time.Now().UTC()
	return s.write(p)
}

// Delete removes a project and all its files.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.projectPath(id))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	log.Info().Int("id", id).Msg("Project deleted")
	return os.RemoveAll(dir)
}

// Update reads the project, lets mutate change it and writes the result, all
// under the store lock so concurrent read-modify-write cycles cannot lose
// each other's changes. On error nothing is committed.
func (s *Store) Update(id int, mutate func(*Project) error) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if err := mutate(p); err != nil {
		return nil, err
	}

	p.Updated = time.Now().UTC()
	if err := s.write(p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateCalibration reads the project, derives the next calibration state
// through apply and swaps it in atomically. On error nothing is committed.
func (s *Store) UpdateCalibration(id int, apply func(calib.State) (calib.State, error)) (*Project, error) {
	var next calib.State
	p, err := s.Update(id, func(p *Project) error {
		st, err := apply(p.Calibration)
		if err != nil {
			return err
		}
		p.Calibration = st
		next = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("id", id).
		Float64("ppm", next.PixelsPerMeter).
		Str("unit", string(next.CoordUnit)).
		Msg("Calibration updated")

	return p, nil
}

// Import stores a project loaded from a package under a fresh ID.
func (s *Store) Import(p *Project) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = s.nextID
	p.Updated = time.Now().UTC()
	if p.Created.IsZero() {
		p.Created = p.Updated
	}

	if err := s.write(p); err != nil {
		return nil, err
	}
	s.nextID++

	log.Info().Int("id", p.ID).Str("name", p.Name).Msg("Project imported")
	return p, nil
}

// SheetDir is where processed sheet images for a project live.
func (s *Store) SheetDir(id int) string {
	return filepath.Join(s.dir, "projects", strconv.Itoa(id), "sheets")
}

// write marshals the project and renames it into place. Callers hold s.mu.
func (s *Store) write(p *Project) error {
	path := s.projectPath(p.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
