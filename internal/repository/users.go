package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/domain"
)

// UserRepository resolves users by role for alert fan-out.
type UserRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *pgxpool.Pool, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		db:  db,
		log: logger,
	}
}

// UserIDsByRole returns the ids of active users holding the given role.
func (r *UserRepository) UserIDsByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id FROM users WHERE role = $1 AND active = TRUE ORDER BY id", role,
	)
	if err != nil {
		return nil, fmt.Errorf("querying users by role: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts a user. Used by provisioning and tests.
func (r *UserRepository) Create(ctx context.Context, id, name, role string) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO users (id, name, role, active) VALUES ($1, $2, $3, TRUE)",
		id, name, role,
	)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"user_id": id,
		"role":    role,
	}).Info("User created")
	return nil
}

var _ domain.UserDirectory = (*UserRepository)(nil)
