package repo

import (
	"context"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
	"storyreel/internal/tier"
)

// UserRepositoryPG implements domain.UserRepository.
type UserRepositoryPG struct {
	db infra.SQLExecutor
}

func NewUserRepository(db infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{db: db}
}

func (r *UserRepositoryPG) Upsert(ctx context.Context, user *domain.User) (*domain.User, error) {
	t := user.Tier
	if t == "" {
		t = tier.DefaultTier
	}
	row := r.db.QueryRow(ctx, sqlinline.QUpsertUser, user.ID, user.Email, t)
	var out domain.User
	if err := row.Scan(&out.ID, &out.Email, &out.Tier); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTier resolves a user's tier, defaulting unknown users to the lowest tier
// rather than failing the submission.
func (r *UserRepositoryPG) GetTier(ctx context.Context, id string) (string, error) {
	var t string
	if err := r.db.QueryRow(ctx, sqlinline.QSelectUserTier, id).Scan(&t); err != nil {
		if infra.IsNoRows(err) {
			return tier.DefaultTier, nil
		}
		return "", err
	}
	return t, nil
}

func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, sqlinline.QSelectUserByEmail, email)
	var out domain.User
	if err := row.Scan(&out.ID, &out.Email, &out.Tier, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *UserRepositoryPG) UpdateTier(ctx context.Context, id, tierName string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, sqlinline.QUpdateUserTier, id, tierName)
	var out domain.User
	if err := row.Scan(&out.ID, &out.Email, &out.Tier); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
