package models

import "sort"

// Student represents a student record inside a division
type Student struct {
	ID       string `json:"id"`    // Generated identifier, "stu" + 5 hex chars
	Name     string `json:"name"`  // Free-form name
	Email    string `json:"email"` // Free-form email
	Phone    string `json:"phone"` // Free-form phone
	Division string `json:"-"`     // Owning division, filled in on read
}

// Directory is the full dataset: division name -> ordered students.
// It is loaded and saved as a unit.
type Directory struct {
	Divisions map[string][]Student `json:"divisions"`
}

// NewDirectory returns an empty directory
func NewDirectory() Directory {
	return Directory{Divisions: map[string][]Student{}}
}

// Names returns the division names in sorted order
func (d Directory) Names() []string {
	names := make([]string, 0, len(d.Divisions))
	for name := range d.Divisions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the total number of students across all divisions
func (d Directory) Len() int {
	n := 0
	for _, students := range d.Divisions {
		n += len(students)
	}
	return n
}

// Accounts maps usernames to password hashes
type Accounts map[string]string
