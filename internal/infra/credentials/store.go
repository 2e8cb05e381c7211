// Package credentials resolves provider API tokens from the database,
// falling back to environment configuration when no row exists. Rotating a
// token through the store takes effect without a redeploy.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

const (
	ProviderOpenAI     = "openai"
	ProviderReplicate  = "replicate"
	ProviderElevenLabs = "elevenlabs"
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// TokenOr resolves the provider token with an environment fallback.
func (s *Store) TokenOr(ctx context.Context, provider, fallback string) (string, error) {
	token, err := s.Token(ctx, provider)
	if err != nil {
		return "", err
	}
	if token == "" {
		return strings.TrimSpace(fallback), nil
	}
	return token, nil
}

// SetToken stores or rotates a provider token.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider = strings.TrimSpace(provider)
	token = strings.TrimSpace(token)
	if provider == "" {
		return errors.New("provider is required")
	}
	if token == "" {
		return errors.New("token is required")
	}
	return s.upsert(ctx, provider, token, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
