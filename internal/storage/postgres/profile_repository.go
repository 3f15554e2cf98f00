package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type profileRepository struct {
	q querier
}

func (r *profileRepository) Get(ctx context.Context, userID string) (domain.Profile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		p    domain.Profile
		role string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT user_id, org_id, location_id, full_name, email, role, active, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.OrgID, &p.LocationID, &p.FullName, &p.Email, &role, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, domain.ErrProfileNotFound
		}
		return domain.Profile{}, fmt.Errorf("select profile: %w", err)
	}
	p.Role = domain.Role(role)
	return p, nil
}

func (r *profileRepository) Upsert(ctx context.Context, p domain.Profile) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO profiles (user_id, org_id, location_id, full_name, email, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		ON CONFLICT (user_id) DO UPDATE
		SET org_id = EXCLUDED.org_id,
		    location_id = EXCLUDED.location_id,
		    full_name = EXCLUDED.full_name,
		    email = EXCLUDED.email,
		    role = EXCLUDED.role,
		    active = EXCLUDED.active,
		    updated_at = EXCLUDED.updated_at
	`, p.UserID, p.OrgID, p.LocationID, p.FullName, p.Email, string(p.Role), p.Active, now); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

var _ domain.ProfileRepository = (*profileRepository)(nil)
