package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type profileRepository struct {
	exec executor
}

func (r *profileRepository) Get(_ context.Context, userID string) (domain.Profile, error) {
	var out domain.Profile
	err := r.exec(func(tx *memTx) error {
		profile, ok := tx.s.profiles[userID]
		if !ok {
			return domain.ErrProfileNotFound
		}
		out = profile
		return nil
	})
	return out, err
}

func (r *profileRepository) Upsert(_ context.Context, profile domain.Profile) error {
	return r.exec(func(tx *memTx) error {
		now := time.Now().UTC()
		if existing, ok := tx.s.profiles[profile.UserID]; ok {
			profile.CreatedAt = existing.CreatedAt
		} else if profile.CreatedAt.IsZero() {
			profile.CreatedAt = now
		}
		profile.UpdatedAt = now
		put(tx, tx.s.profiles, profile.UserID, profile)
		return nil
	})
}

var _ domain.ProfileRepository = (*profileRepository)(nil)
