package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"

	"rollbook-server-go/models"
)

const (
	divisionsKey           = "divisions" // Set: all division names
	divisionStudentsPrefix = "division:" // List prefix: division:{name}:students -> ordered student IDs
	studentInfoPrefix      = "student:"  // Hash prefix: student:{id} -> student details
	accountsKey            = "accounts"  // Hash: username -> password hash
)

// RedisStore keeps the datasets in Redis sets, lists and hashes
type RedisStore struct {
	Client *redis.Client
}

// NewRedisStore creates a new RedisStore instance
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

// Helper to generate division students list key
func getDivisionStudentsKey(division string) string {
	return divisionStudentsPrefix + division + ":students"
}

// Helper to generate student info key
func getStudentInfoKey(studentID string) string {
	return studentInfoPrefix + studentID
}

// --- Directory ---

// LoadDirectory reads every division and its students in list order
func (s *RedisStore) LoadDirectory(ctx context.Context) (models.Directory, error) {
	dir := models.NewDirectory()

	names, err := s.Client.SMembers(ctx, divisionsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Directory{}, fmt.Errorf("failed to get division names from Redis: %w", err)
	}

	for _, name := range names {
		ids, err := s.Client.LRange(ctx, getDivisionStudentsKey(name), 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return models.Directory{}, fmt.Errorf("failed to get student IDs for division %s: %w", name, err)
		}

		students := make([]models.Student, 0, len(ids))
		if len(ids) > 0 {
			pipe := s.Client.Pipeline()
			cmds := make([]*redis.StringStringMapCmd, len(ids))
			for i, id := range ids {
				cmds[i] = pipe.HGetAll(ctx, getStudentInfoKey(id))
			}
			if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
				return models.Directory{}, fmt.Errorf("failed to get students for division %s: %w", name, err)
			}
			for i, cmd := range cmds {
				data := cmd.Val()
				if len(data) == 0 {
					slog.Warn("student listed without details", "student", ids[i], "division", name)
					continue
				}
				students = append(students, models.Student{
					ID:       data["id"],
					Name:     data["name"],
					Email:    data["email"],
					Phone:    data["phone"],
					Division: name,
				})
			}
		}
		dir.Divisions[name] = students
	}
	return dir, nil
}

// SaveDirectory rewrites every key of the directory in one MULTI/EXEC,
// dropping divisions and students that are gone.
func (s *RedisStore) SaveDirectory(ctx context.Context, dir models.Directory) error {
	oldNames, err := s.Client.SMembers(ctx, divisionsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get division names from Redis: %w", err)
	}
	var staleKeys []string
	for _, name := range oldNames {
		ids, err := s.Client.LRange(ctx, getDivisionStudentsKey(name), 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to get student IDs for division %s: %w", name, err)
		}
		for _, id := range ids {
			staleKeys = append(staleKeys, getStudentInfoKey(id))
		}
		staleKeys = append(staleKeys, getDivisionStudentsKey(name))
	}

	_, err = s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(staleKeys) > 0 {
			pipe.Del(ctx, staleKeys...)
		}
		pipe.Del(ctx, divisionsKey)
		for name, students := range dir.Divisions {
			pipe.SAdd(ctx, divisionsKey, name)
			if len(students) == 0 {
				continue
			}
			ids := make([]interface{}, len(students))
			for i, st := range students {
				ids[i] = st.ID
				pipe.HSet(ctx, getStudentInfoKey(st.ID), map[string]interface{}{
					"id":       st.ID,
					"name":     st.Name,
					"email":    st.Email,
					"phone":    st.Phone,
					"division": name,
				})
			}
			pipe.RPush(ctx, getDivisionStudentsKey(name), ids...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save directory to Redis: %w", err)
	}
	return nil
}

// --- Accounts ---

// LoadAccounts reads the accounts hash
func (s *RedisStore) LoadAccounts(ctx context.Context) (models.Accounts, error) {
	data, err := s.Client.HGetAll(ctx, accountsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get accounts from Redis: %w", err)
	}
	accounts := make(models.Accounts, len(data))
	for username, hash := range data {
		accounts[username] = hash
	}
	return accounts, nil
}

// SaveAccounts sets every username field; accounts are never deleted
func (s *RedisStore) SaveAccounts(ctx context.Context, accounts models.Accounts) error {
	if len(accounts) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(accounts))
	for username, hash := range accounts {
		fields[username] = hash
	}
	if err := s.Client.HSet(ctx, accountsKey, fields).Err(); err != nil {
		return fmt.Errorf("failed to save accounts to Redis: %w", err)
	}
	return nil
}

// Close releases the client
func (s *RedisStore) Close() error {
	return s.Client.Close()
}

// --- Utility ---

// InitializeRedisClient creates and tests a Redis client connection
func InitializeRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", strings.TrimSpace(addr), err)
	}

	slog.Info("connected to Redis", "addr", addr, "db", db)
	return rdb, nil
}
