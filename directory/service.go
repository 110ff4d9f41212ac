package directory

import (
	"context"
	"fmt"
	"log/slog"

	"rollbook-server-go/db"
	"rollbook-server-go/models"
)

// Service runs every operation as load -> mutate -> save against a db.Store.
// There is no locking: concurrent mutations race and the last save wins.
type Service struct {
	store db.Store
	newID IDSource
}

// NewService creates a Service using random student ids
func NewService(store db.Store) *Service {
	return &Service{store: store, newID: RandomStudentID}
}

func (s *Service) load(ctx context.Context) (models.Directory, error) {
	d, err := s.store.LoadDirectory(ctx)
	if err != nil {
		return models.Directory{}, fmt.Errorf("failed to load directory: %w", err)
	}
	return d, nil
}

func (s *Service) save(ctx context.Context, d models.Directory) error {
	if err := s.store.SaveDirectory(ctx, d); err != nil {
		return fmt.Errorf("failed to save directory: %w", err)
	}
	return nil
}

// mutate loads the directory, applies fn and saves only if fn succeeded
func (s *Service) mutate(ctx context.Context, fn func(d models.Directory) error) error {
	d, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(d); err != nil {
		return err
	}
	return s.save(ctx, d)
}

// Directory returns the whole dataset
func (s *Service) Directory(ctx context.Context) (models.Directory, error) {
	return s.load(ctx)
}

// Students lists one division; unknown divisions are empty
func (s *Service) Students(ctx context.Context, division string) ([]models.Student, error) {
	d, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return Students(d, division), nil
}

// AllStudents lists every student, divisions in name order
func (s *Service) AllStudents(ctx context.Context) ([]models.Student, error) {
	d, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return AllStudents(d), nil
}

// Search filters students, see Search
func (s *Service) Search(ctx context.Context, query string) ([]models.Student, error) {
	d, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return Search(d, query), nil
}

// GetStudent looks a student up by id
func (s *Service) GetStudent(ctx context.Context, id string) (models.Student, bool, error) {
	d, err := s.load(ctx)
	if err != nil {
		return models.Student{}, false, err
	}
	st, ok := FindStudent(d, id)
	return st, ok, nil
}

// AddDivision creates an empty division
func (s *Service) AddDivision(ctx context.Context, name string) error {
	return s.mutate(ctx, func(d models.Directory) error {
		return AddDivision(d, name)
	})
}

// DeleteDivision removes a division with its students
func (s *Service) DeleteDivision(ctx context.Context, name string) error {
	return s.mutate(ctx, func(d models.Directory) error {
		return DeleteDivision(d, name)
	})
}

// AddStudent creates a student with a fresh id in the named division
func (s *Service) AddStudent(ctx context.Context, division, name, email, phone string) (models.Student, error) {
	var st models.Student
	err := s.mutate(ctx, func(d models.Directory) error {
		id, err := NewStudentID(d, s.newID)
		if err != nil {
			return err
		}
		st = models.Student{ID: id, Name: name, Email: email, Phone: phone, Division: division}
		return AddStudent(d, division, st)
	})
	if err != nil {
		return models.Student{}, err
	}
	return st, nil
}

// ImportStudents appends every student with a fresh id and returns how many were added
func (s *Service) ImportStudents(ctx context.Context, division string, students []models.Student) (int, error) {
	imported := 0
	err := s.mutate(ctx, func(d models.Directory) error {
		if _, ok := d.Divisions[division]; !ok {
			return ErrDivisionNotFound
		}
		for _, st := range students {
			id, err := NewStudentID(d, s.newID)
			if err != nil {
				return err
			}
			st.ID = id
			if err := AddStudent(d, division, st); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

// UpdateStudent overwrites name, email and phone of the student with the given id
func (s *Service) UpdateStudent(ctx context.Context, id, name, email, phone string) (models.Student, error) {
	var st models.Student
	err := s.mutate(ctx, func(d models.Directory) error {
		var err error
		st, err = UpdateStudent(d, id, name, email, phone)
		return err
	})
	if err != nil {
		return models.Student{}, err
	}
	return st, nil
}

// DeleteStudent removes a student from its division
func (s *Service) DeleteStudent(ctx context.Context, division, id string) error {
	return s.mutate(ctx, func(d models.Directory) error {
		return DeleteStudent(d, division, id)
	})
}

// SeedIfEmpty adds demo divisions and students when the directory has no divisions.
// It reports whether anything was added.
func (s *Service) SeedIfEmpty(ctx context.Context) (bool, error) {
	d, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if len(d.Divisions) > 0 {
		slog.Info("existing divisions found, skipping demo data", "count", len(d.Divisions))
		return false, nil
	}

	slog.Info("no divisions found, adding demo data")
	seed := map[string][]models.Student{
		"10A": {
			{Name: "Asha Rao", Email: "asha@example.com", Phone: "555-0101"},
			{Name: "Ben Ito", Email: "ben@example.com", Phone: "555-0102"},
		},
		"10B": {
			{Name: "Chen Li", Email: "chen@example.com", Phone: "555-0201"},
		},
	}
	for division, students := range seed {
		if err := AddDivision(d, division); err != nil {
			return false, err
		}
		for _, st := range students {
			id, err := NewStudentID(d, s.newID)
			if err != nil {
				return false, err
			}
			st.ID = id
			if err := AddStudent(d, division, st); err != nil {
				return false, err
			}
		}
	}
	if err := s.save(ctx, d); err != nil {
		return false, err
	}
	slog.Info("demo data added", "divisions", len(d.Divisions), "students", d.Len())
	return true, nil
}
