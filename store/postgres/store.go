// Package postgres is a goAccounts.UserStore backed by a PostgreSQL users
// table through database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goAccounts "github.com/MrEthical07/goAccounts"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// Schema creates the users table read by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	username      TEXT NOT NULL DEFAULT '',
	is_admin      BOOLEAN NOT NULL DEFAULT false,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const (
	selectUser   = `SELECT id, email, username, is_admin, password_hash, created_at FROM users `
	selectByID   = selectUser + `WHERE id = $1`
	selectByMail = selectUser + `WHERE email = $1`
	insertUser   = `INSERT INTO users (id, email, username, is_admin, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
)

// Options configures the connection pool opened by Open.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store reads and writes users. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open connects to dsn and verifies the connection with a ping.
func Open(ctx context.Context, dsn string, opts Options, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(db, log), nil
}

// New wraps an open pool.
func New(db *sql.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// Migrate creates the users table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	s.log.Info("users table ready")
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*goAccounts.User, error) {
	return s.findOne(ctx, selectByID, id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*goAccounts.User, error) {
	return s.findOne(ctx, selectByMail, email)
}

func (s *Store) findOne(ctx context.Context, query, arg string) (*goAccounts.User, error) {
	var u goAccounts.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.IsAdmin,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goAccounts.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts user. A duplicate id or email is reported as
// goAccounts.ErrUserExists.
func (s *Store) CreateUser(ctx context.Context, user *goAccounts.User) error {
	if user == nil || user.ID == "" {
		return goAccounts.ErrInvalidUser
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, insertUser,
		user.ID,
		user.Email,
		user.Username,
		user.IsAdmin,
		user.PasswordHash,
		createdAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return goAccounts.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}

	s.log.Debug("user created", zap.String("id", user.ID))
	return nil
}

// HealthCheck pings the database and runs a trivial query.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
