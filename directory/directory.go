// Package directory holds the division and student operations over an
// in-memory models.Directory, and a Service that persists them.
package directory

import (
	"errors"
	"strings"

	"rollbook-server-go/models"
)

var (
	ErrDivisionExists   = errors.New("division already exists")
	ErrDivisionNotFound = errors.New("division does not exist")
	ErrStudentNotFound  = errors.New("student not found")
)

// AddDivision creates an empty division
func AddDivision(d models.Directory, name string) error {
	if _, ok := d.Divisions[name]; ok {
		return ErrDivisionExists
	}
	d.Divisions[name] = []models.Student{}
	return nil
}

// DeleteDivision removes a division and all of its students
func DeleteDivision(d models.Directory, name string) error {
	if _, ok := d.Divisions[name]; !ok {
		return ErrDivisionNotFound
	}
	delete(d.Divisions, name)
	return nil
}

// AddStudent appends st to the named division
func AddStudent(d models.Directory, division string, st models.Student) error {
	students, ok := d.Divisions[division]
	if !ok {
		return ErrDivisionNotFound
	}
	st.Division = division
	d.Divisions[division] = append(students, st)
	return nil
}

// FindStudent returns the first student with the given id, divisions in name order
func FindStudent(d models.Directory, id string) (models.Student, bool) {
	for _, name := range d.Names() {
		for _, st := range d.Divisions[name] {
			if st.ID == id {
				st.Division = name
				return st, true
			}
		}
	}
	return models.Student{}, false
}

// UpdateStudent overwrites the mutable fields of the first student with the given id
func UpdateStudent(d models.Directory, id, name, email, phone string) (models.Student, error) {
	for _, division := range d.Names() {
		students := d.Divisions[division]
		for i := range students {
			if students[i].ID != id {
				continue
			}
			students[i].Name = name
			students[i].Email = email
			students[i].Phone = phone
			students[i].Division = division
			return students[i], nil
		}
	}
	return models.Student{}, ErrStudentNotFound
}

// DeleteStudent rebuilds the division's list without id. Unknown ids are a no-op.
func DeleteStudent(d models.Directory, division, id string) error {
	students, ok := d.Divisions[division]
	if !ok {
		return ErrDivisionNotFound
	}
	kept := make([]models.Student, 0, len(students))
	for _, st := range students {
		if st.ID != id {
			kept = append(kept, st)
		}
	}
	d.Divisions[division] = kept
	return nil
}

// Students returns a tagged copy of one division; unknown divisions are empty
func Students(d models.Directory, division string) []models.Student {
	src := d.Divisions[division]
	out := make([]models.Student, len(src))
	for i, st := range src {
		st.Division = division
		out[i] = st
	}
	return out
}

// AllStudents concatenates every division, each student tagged with its division
func AllStudents(d models.Directory) []models.Student {
	out := make([]models.Student, 0, d.Len())
	for _, name := range d.Names() {
		out = append(out, Students(d, name)...)
	}
	return out
}

// Search matches names case-insensitively and ids on the raw query.
// When any id matches, only the id matches are returned.
func Search(d models.Directory, query string) []models.Student {
	lowered := strings.ToLower(query)
	byName := []models.Student{}
	byID := []models.Student{}
	for _, st := range AllStudents(d) {
		if strings.Contains(strings.ToLower(st.Name), lowered) {
			byName = append(byName, st)
		}
		if strings.Contains(st.ID, query) {
			byID = append(byID, st)
		}
	}
	if len(byID) > 0 {
		return byID
	}
	return byName
}
