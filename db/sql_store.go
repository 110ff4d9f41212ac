package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"rollbook-server-go/models"
)

// Driver names registered by the imported SQL drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers "sqlite", which sqlx does not know about
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLStore keeps the datasets in three tables: users, divisions, students.
// A connection is opened and closed inside every call.
type SQLStore struct {
	driver string
	dsn    string
}

type studentRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	Phone        string `db:"phone"`
	DivisionName string `db:"division_name"`
}

type userRow struct {
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
}

// NewSQLStore verifies the connection and creates the schema
func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	s := &SQLStore{driver: driver, dsn: dsn}
	err := s.withConn(ctx, func(conn *sqlx.DB) error {
		return CreateSchema(ctx, conn)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) withConn(ctx context.Context, fn func(conn *sqlx.DB) error) error {
	conn, err := sqlx.ConnectContext(ctx, s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", s.driver, err)
	}
	defer conn.Close()
	return fn(conn)
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.withConn(ctx, func(conn *sqlx.DB) error {
		tx, err := conn.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		return nil
	})
}

// LoadDirectory selects all divisions, then all students grouped by division_name
func (s *SQLStore) LoadDirectory(ctx context.Context) (models.Directory, error) {
	dir := models.NewDirectory()
	err := s.withConn(ctx, func(conn *sqlx.DB) error {
		var names []string
		if err := conn.SelectContext(ctx, &names, "SELECT name FROM divisions"); err != nil {
			return fmt.Errorf("failed to select divisions: %w", err)
		}
		for _, name := range names {
			dir.Divisions[name] = []models.Student{}
		}

		var rows []studentRow
		err := conn.SelectContext(ctx, &rows,
			"SELECT id, name, email, phone, division_name FROM students ORDER BY division_name, position")
		if err != nil {
			return fmt.Errorf("failed to select students: %w", err)
		}
		for _, row := range rows {
			students, ok := dir.Divisions[row.DivisionName]
			if !ok {
				slog.Warn("skipping student of unknown division", "student", row.ID, "division", row.DivisionName)
				continue
			}
			dir.Divisions[row.DivisionName] = append(students, models.Student{
				ID:       row.ID,
				Name:     row.Name,
				Email:    row.Email,
				Phone:    row.Phone,
				Division: row.DivisionName,
			})
		}
		return nil
	})
	if err != nil {
		return models.Directory{}, err
	}
	return dir, nil
}

// SaveDirectory upserts every division and student, then prunes rows that are
// no longer part of dir.
func (s *SQLStore) SaveDirectory(ctx context.Context, dir models.Directory) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		insertDivision := tx.Rebind("INSERT INTO divisions (name) VALUES (?) ON CONFLICT (name) DO NOTHING")
		upsertStudent := tx.Rebind(`INSERT INTO students (id, name, email, phone, division_name, position)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email, phone = excluded.phone,
    division_name = excluded.division_name, position = excluded.position`)

		keepStudents := map[string]bool{}
		for name, students := range dir.Divisions {
			if _, err := tx.ExecContext(ctx, insertDivision, name); err != nil {
				return fmt.Errorf("failed to insert division %s: %w", name, err)
			}
			for i, st := range students {
				if _, err := tx.ExecContext(ctx, upsertStudent, st.ID, st.Name, st.Email, st.Phone, name, i); err != nil {
					return fmt.Errorf("failed to upsert student %s: %w", st.ID, err)
				}
				keepStudents[st.ID] = true
			}
		}

		var studentIDs []string
		if err := tx.SelectContext(ctx, &studentIDs, "SELECT id FROM students"); err != nil {
			return fmt.Errorf("failed to list students: %w", err)
		}
		deleteStudent := tx.Rebind("DELETE FROM students WHERE id = ?")
		for _, id := range studentIDs {
			if keepStudents[id] {
				continue
			}
			if _, err := tx.ExecContext(ctx, deleteStudent, id); err != nil {
				return fmt.Errorf("failed to delete student %s: %w", id, err)
			}
		}

		var names []string
		if err := tx.SelectContext(ctx, &names, "SELECT name FROM divisions"); err != nil {
			return fmt.Errorf("failed to list divisions: %w", err)
		}
		deleteDivision := tx.Rebind("DELETE FROM divisions WHERE name = ?")
		for _, name := range names {
			if _, ok := dir.Divisions[name]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, deleteDivision, name); err != nil {
				return fmt.Errorf("failed to delete division %s: %w", name, err)
			}
		}
		return nil
	})
}

// LoadAccounts selects every user row
func (s *SQLStore) LoadAccounts(ctx context.Context) (models.Accounts, error) {
	accounts := models.Accounts{}
	err := s.withConn(ctx, func(conn *sqlx.DB) error {
		var rows []userRow
		if err := conn.SelectContext(ctx, &rows, "SELECT username, password_hash FROM users"); err != nil {
			return fmt.Errorf("failed to select users: %w", err)
		}
		for _, row := range rows {
			accounts[row.Username] = row.PasswordHash
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// SaveAccounts inserts or replaces each account; accounts are never deleted
func (s *SQLStore) SaveAccounts(ctx context.Context, accounts models.Accounts) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		upsert := tx.Rebind(`INSERT INTO users (username, password_hash) VALUES (?, ?)
ON CONFLICT (username) DO UPDATE SET password_hash = excluded.password_hash`)
		for username, hash := range accounts {
			if _, err := tx.ExecContext(ctx, upsert, username, hash); err != nil {
				return fmt.Errorf("failed to save user %s: %w", username, err)
			}
		}
		return nil
	})
}

// Close is a no-op: connections never outlive a call
func (s *SQLStore) Close() error { return nil }
