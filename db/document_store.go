package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rollbook-server-go/models"
)

// DocumentStore keeps the directory and the accounts as two JSON documents on disk
type DocumentStore struct {
	dataFile     string
	accountsFile string
}

// NewDocumentStore creates the parent directories of both files.
// The files themselves are created on first save.
func NewDocumentStore(dataFile, accountsFile string) (*DocumentStore, error) {
	for _, f := range []string{dataFile, accountsFile} {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", f, err)
		}
	}
	return &DocumentStore{dataFile: dataFile, accountsFile: accountsFile}, nil
}

// LoadDirectory parses the directory document, or returns an empty directory if absent
func (s *DocumentStore) LoadDirectory(_ context.Context) (models.Directory, error) {
	dir := models.NewDirectory()
	found, err := readJSON(s.dataFile, &dir)
	if err != nil {
		return models.Directory{}, err
	}
	if !found || dir.Divisions == nil {
		dir.Divisions = map[string][]models.Student{}
	}
	for name, students := range dir.Divisions {
		for i := range students {
			students[i].Division = name
		}
	}
	return dir, nil
}

// SaveDirectory overwrites the directory document
func (s *DocumentStore) SaveDirectory(_ context.Context, dir models.Directory) error {
	if dir.Divisions == nil {
		dir.Divisions = map[string][]models.Student{}
	}
	return writeJSON(s.dataFile, dir)
}

// LoadAccounts parses the accounts document, or returns no accounts if absent
func (s *DocumentStore) LoadAccounts(_ context.Context) (models.Accounts, error) {
	accounts := models.Accounts{}
	if _, err := readJSON(s.accountsFile, &accounts); err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = models.Accounts{}
	}
	return accounts, nil
}

// SaveAccounts overwrites the accounts document
func (s *DocumentStore) SaveAccounts(_ context.Context, accounts models.Accounts) error {
	if accounts == nil {
		accounts = models.Accounts{}
	}
	return writeJSON(s.accountsFile, accounts)
}

// Close is a no-op: files are opened and closed within each call
func (s *DocumentStore) Close() error { return nil }

func readJSON(path string, v interface{}) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}

// writeJSON replaces path through a temp file in the same directory
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
