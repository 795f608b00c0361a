package userstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/password"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the slice of *pgxpool.Pool the store uses.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres reads identities from a table shaped like
//
//	CREATE TABLE users (
//	    id            TEXT PRIMARY KEY,
//	    email         TEXT NOT NULL UNIQUE,
//	    username      TEXT NOT NULL DEFAULT '',
//	    password_hash TEXT NOT NULL,
//	    role          TEXT NOT NULL DEFAULT '',
//	    active        BOOLEAN NOT NULL DEFAULT TRUE
//	);
//
// Emails are compared lower-cased.
type Postgres struct {
	db       querier
	pool     *pgxpool.Pool
	verifier *password.Verifier
}

var _ sessionauth.UserStore = (*Postgres)(nil)

const selectIdentity = `
	SELECT id, email, username, password_hash, role, active
	FROM users
`

// NewPostgres opens a pool for dsn and pings it.
func NewPostgres(ctx context.Context, dsn string, verifier *password.Verifier) (*Postgres, error) {
	const op = "userstore.NewPostgres"

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Postgres{db: pool, pool: pool, verifier: verifier}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Add hashes plain and inserts an active identity. An empty ID is
// replaced with a random UUID.
func (p *Postgres) Add(ctx context.Context, id, email, username, role, plain string) (sessionauth.Identity, error) {
	const op = "userstore.Postgres.Add"

	hash, err := p.verifier.Hash(plain)
	if err != nil {
		return sessionauth.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	ident := sessionauth.Identity{
		ID:           id,
		Email:        normalizeEmail(email),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}

	query := `
		INSERT INTO users(id, email, username, password_hash, role, active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = p.db.Exec(ctx, query,
		ident.ID,
		ident.Email,
		ident.Username,
		ident.PasswordHash,
		ident.Role,
		ident.Active,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return sessionauth.Identity{}, fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
		}
		return sessionauth.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	return ident, nil
}

// SetActive flips the active flag.
func (p *Postgres) SetActive(ctx context.Context, id string, active bool) error {
	const op = "userstore.Postgres.SetActive"

	tag, err := p.db.Exec(ctx, `UPDATE users SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrUnknownUser)
	}
	return nil
}

func (p *Postgres) FindByEmail(ctx context.Context, email string) (*sessionauth.Identity, error) {
	const op = "userstore.Postgres.FindByEmail"
	return p.queryOne(ctx, op, selectIdentity+` WHERE lower(email) = $1`, normalizeEmail(email))
}

func (p *Postgres) FindByID(ctx context.Context, id string) (*sessionauth.Identity, error) {
	const op = "userstore.Postgres.FindByID"
	return p.queryOne(ctx, op, selectIdentity+` WHERE id = $1`, id)
}

func (p *Postgres) queryOne(ctx context.Context, op, query string, arg string) (*sessionauth.Identity, error) {
	var ident sessionauth.Identity
	err := p.db.QueryRow(ctx, query, arg).Scan(
		&ident.ID,
		&ident.Email,
		&ident.Username,
		&ident.PasswordHash,
		&ident.Role,
		&ident.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &ident, nil
}

func (p *Postgres) ValidatePassword(plain, hash string) bool {
	return p.verifier.ValidatePassword(plain, hash)
}

func (p *Postgres) DummyHash() string {
	return p.verifier.DummyHash()
}
