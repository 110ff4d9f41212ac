package directory

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"rollbook-server-go/models"
)

const (
	studentIDPrefix = "stu"
	studentIDHexLen = 5
	maxIDAttempts   = 10
)

// ErrIDExhausted is returned when every candidate id was already taken
var ErrIDExhausted = errors.New("could not generate a unique student id")

// IDSource yields candidate student ids. Tests swap it for a fixed sequence.
type IDSource func() string

// RandomStudentID returns "stu" + the first 5 hex chars of a random UUID
func RandomStudentID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return studentIDPrefix + hex[:studentIDHexLen]
}

// NewStudentID draws ids from next until one is not used anywhere in d
func NewStudentID(d models.Directory, next IDSource) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := next()
		if _, taken := FindStudent(d, id); !taken {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}
