package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"diary/internal/auth"
)

const role = "client"

var (
	ErrClientIDRequired = errors.New("client id required")
	ErrTokenRevoked     = errors.New("refresh token revoked or unknown")
)

// Store is the persistence the service needs; *Repository implements it.
type Store interface {
	UpsertClient(ctx context.Context, clientID string) error
	SaveRefreshToken(ctx context.Context, clientID, token string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, clientID, token string) (bool, error)
}

// Service registers API clients and rotates their tokens.
type Service struct {
	store  Store
	issuer auth.Issuer
	log    *zap.Logger
}

// NewService creates a service backed by a store.
func NewService(store Store, issuer auth.Issuer, log *zap.Logger) *Service {
	return &Service{store: store, issuer: issuer, log: log}
}

// Register persists the client and issues a fresh token pair.
func (s *Service) Register(ctx context.Context, clientID string) (auth.TokenPair, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return auth.TokenPair{}, ErrClientIDRequired
	}
	if err := s.store.UpsertClient(ctx, clientID); err != nil {
		return auth.TokenPair{}, fmt.Errorf("upsert client: %w", err)
	}
	s.log.Info("client registered", zap.String("client_id", clientID))
	return s.issue(ctx, clientID)
}

// Refresh exchanges a refresh token for a new pair. The old token is
// revoked, so each refresh token works once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := s.issuer.Parse(refreshToken, auth.KindRefresh)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("parse refresh token: %w", err)
	}
	ok, err := s.store.RevokeRefreshToken(ctx, claims.Subject, refreshToken)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !ok {
		return auth.TokenPair{}, ErrTokenRevoked
	}
	return s.issue(ctx, claims.Subject)
}

func (s *Service) issue(ctx context.Context, clientID string) (auth.TokenPair, error) {
	tokens, err := s.issuer.Issue(clientID, role)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := s.store.SaveRefreshToken(ctx, clientID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		return auth.TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}
	return tokens, nil
}
