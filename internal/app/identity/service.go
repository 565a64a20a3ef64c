package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nuid"
	"github.com/venue-ops/collab/internal/collab"
	"github.com/venue-ops/collab/internal/platform/auth"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidUsername     = errors.New("username is required")
	ErrInvalidPassword     = errors.New("password must be at least 8 characters")
	ErrInvalidKind         = errors.New("kind must be organizer, artist or user")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrRefreshTokenMissing = errors.New("refresh_token is required")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

type Registration struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Kind      string `json:"kind"`
	StageName string `json:"stage_name"`
}

type AuthResponse struct {
	Token        string `json:"token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Kind         string `json:"kind"`
}

type Service struct {
	Repo       Repository
	AuthToken  auth.Manager
	NewID      func() string
	NewToken   func() string
	RefreshTTL time.Duration
	Now        func() time.Time
}

func NewService(repo Repository, tokenManager auth.Manager) *Service {
	return &Service{
		Repo:       repo,
		AuthToken:  tokenManager,
		NewID:      uuid.NewString,
		NewToken:   nuid.Next,
		RefreshTTL: 30 * 24 * time.Hour,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func normalizeKind(kind string) (string, error) {
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case "":
		return KindUser, nil
	case KindOrganizer, KindArtist, KindUser:
		return k, nil
	default:
		return "", ErrInvalidKind
	}
}

func validateCredentials(username, password string) error {
	if normalizeUsername(username) == "" {
		return ErrInvalidUsername
	}
	if len(strings.TrimSpace(password)) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

// Register creates the account and, for artists, the artist record the
// roster is keyed on.
func (s *Service) Register(ctx context.Context, reg Registration) (AuthResponse, error) {
	if err := validateCredentials(reg.Username, reg.Password); err != nil {
		return AuthResponse{}, err
	}
	kind, err := normalizeKind(reg.Kind)
	if err != nil {
		return AuthResponse{}, err
	}
	uname := normalizeUsername(reg.Username)

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, err
	}

	u := User{
		ID:           s.NewID(),
		Username:     uname,
		Kind:         kind,
		PasswordHash: string(hash),
	}
	if kind == KindArtist {
		stage := strings.TrimSpace(reg.StageName)
		if stage == "" {
			stage = uname
		}
		err = s.Repo.CreateUserWithArtist(ctx, u, Artist{ID: s.NewID(), UserID: u.ID, StageName: stage})
	} else {
		err = s.Repo.CreateUser(ctx, u)
	}
	if err != nil {
		return AuthResponse{}, err
	}
	return s.issueSession(ctx, u)
}

func (s *Service) Login(ctx context.Context, username, password string) (AuthResponse, error) {
	uname := normalizeUsername(username)
	if uname == "" || strings.TrimSpace(password) == "" {
		return AuthResponse{}, ErrInvalidCredentials
	}

	u, err := s.Repo.FindUserByUsername(ctx, uname)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResponse{}, ErrInvalidCredentials
		}
		return AuthResponse{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return AuthResponse{}, ErrInvalidCredentials
	}
	return s.issueSession(ctx, u)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResponse, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return AuthResponse{}, ErrRefreshTokenMissing
	}

	session, err := s.Repo.FindRefreshTokenByHash(ctx, hashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResponse{}, ErrInvalidRefreshToken
		}
		return AuthResponse{}, err
	}
	if err := s.Repo.RevokeRefreshToken(ctx, session.TokenID); err != nil {
		return AuthResponse{}, err
	}

	u, err := s.Repo.FindUserByID(ctx, session.UserID)
	if err != nil {
		return AuthResponse{}, err
	}
	return s.issueSession(ctx, u)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrRefreshTokenMissing
	}
	session, err := s.Repo.FindRefreshTokenByHash(ctx, hashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Repo.RevokeRefreshToken(ctx, session.TokenID)
}

// ResolveParty reports whether userID is invited as an artist (it has an
// artist record) or as a generic user.
func (s *Service) ResolveParty(ctx context.Context, userID string) (collab.InvitedParty, error) {
	artist, err := s.Repo.FindArtistByUserID(ctx, userID)
	switch {
	case err == nil:
		return collab.ArtistParty{UserID: userID, ArtistID: artist.ID}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if _, err := s.Repo.FindUserByID(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, collab.ErrNotFound
		}
		return nil, err
	}
	return collab.UserParty{UserID: userID}, nil
}

func (s *Service) issueSession(ctx context.Context, user User) (AuthResponse, error) {
	accessToken, err := s.AuthToken.Sign(user.ID, user.Username, user.Kind)
	if err != nil {
		return AuthResponse{}, err
	}

	refreshToken := s.NewToken() + "." + s.NewToken()
	session := RefreshToken{
		TokenID:   s.NewToken(),
		UserID:    user.ID,
		TokenHash: hashRefreshToken(refreshToken),
		ExpiresAt: s.Now().Add(s.RefreshTTL),
	}
	if err := s.Repo.CreateRefreshToken(ctx, session); err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		Token:        accessToken,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		Username:     user.Username,
		Kind:         user.Kind,
	}, nil
}

func hashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func NewTokenManager(secret string) auth.Manager {
	return auth.NewManager(secret, 15*time.Minute)
}
