package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/venue-ops/collab/internal/collab"
	"github.com/venue-ops/collab/internal/platform/pgutil"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// Account kinds. Organizers create invitations; artists carry an artist
// record; plain users join events as participants.
const (
	KindOrganizer = "organizer"
	KindArtist    = "artist"
	KindUser      = "user"
)

type User struct {
	ID           string
	Username     string
	Kind         string
	PasswordHash string
}

type Artist struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	StageName string `json:"stage_name"`
}

type RefreshToken struct {
	TokenID   string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	CreateUser(ctx context.Context, user User) error
	FindUserByUsername(ctx context.Context, username string) (User, error)
	FindUserByID(ctx context.Context, userID string) (User, error)

	// CreateUserWithArtist stores an artist account and its artist record
	// together; neither row exists if either insert fails.
	CreateUserWithArtist(ctx context.Context, user User, artist Artist) error
	FindArtistByUserID(ctx context.Context, userID string) (Artist, error)

	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	FindRefreshTokenByHash(ctx context.Context, tokenHash string) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenID string) error
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createUsersSQL = `
CREATE TABLE IF NOT EXISTS users (
  id text PRIMARY KEY,
  username text NOT NULL UNIQUE,
  kind text NOT NULL DEFAULT 'user',
  password_hash text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createArtistsSQL = `
CREATE TABLE IF NOT EXISTS artists (
  id text PRIMARY KEY,
  user_id text NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
  stage_name text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createRefreshTokensSQL = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
  token_id text PRIMARY KEY,
  user_id text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token_hash text NOT NULL UNIQUE,
  expires_at timestamptz NOT NULL,
  revoked_at timestamptz,
  created_at timestamptz NOT NULL DEFAULT now()
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createUsersSQL, createArtistsSQL, createRefreshTokensSQL} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user User) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO users (id, username, kind, password_hash) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Username, user.Kind, user.PasswordHash,
	)
	if pgutil.IsUniqueViolation(err) {
		return ErrUsernameTaken
	}
	return err
}

func (r *PostgresRepository) FindUserByUsername(ctx context.Context, username string) (User, error) {
	return r.findUser(ctx, `SELECT id, username, kind, password_hash FROM users WHERE username = $1`, username)
}

func (r *PostgresRepository) FindUserByID(ctx context.Context, userID string) (User, error) {
	return r.findUser(ctx, `SELECT id, username, kind, password_hash FROM users WHERE id = $1`, userID)
}

func (r *PostgresRepository) findUser(ctx context.Context, query, arg string) (User, error) {
	var u User
	err := r.Pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Kind, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepository) CreateUserWithArtist(ctx context.Context, user User, artist Artist) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id, username, kind, password_hash) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Username, user.Kind, user.PasswordHash,
	); err != nil {
		if pgutil.IsUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO artists (id, user_id, stage_name) VALUES ($1, $2, $3)`,
		artist.ID, artist.UserID, artist.StageName,
	); err != nil {
		if pgutil.IsUniqueViolation(err) {
			return collab.ErrDuplicateKey
		}
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindArtistByUserID(ctx context.Context, userID string) (Artist, error) {
	var a Artist
	err := r.Pool.QueryRow(ctx,
		`SELECT id, user_id, stage_name FROM artists WHERE user_id = $1`,
		userID,
	).Scan(&a.ID, &a.UserID, &a.StageName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Artist{}, ErrNotFound
		}
		return Artist{}, err
	}
	return a, nil
}

func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token_id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)`,
		token.TokenID, token.UserID, token.TokenHash, token.ExpiresAt,
	)
	return err
}

func (r *PostgresRepository) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (RefreshToken, error) {
	var rt RefreshToken
	err := r.Pool.QueryRow(ctx,
		`SELECT token_id, user_id, token_hash, expires_at, revoked_at
		 FROM refresh_tokens
		 WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()`,
		tokenHash,
	).Scan(&rt.TokenID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshToken{}, ErrNotFound
		}
		return RefreshToken{}, err
	}
	return rt, nil
}

func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	_, err := r.Pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE token_id = $1`,
		tokenID,
	)
	return err
}
