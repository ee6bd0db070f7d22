package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"estate_sync/internal/domain"
)

type AgentStore struct {
	db *sqlx.DB
}

func NewAgentStore(db *sqlx.DB) *AgentStore {
	return &AgentStore{db: db}
}

// Upsert writes the agent keyed by external_id, reactivating it if needed,
// and reports whether a new row was inserted.
func (s *AgentStore) Upsert(ctx context.Context, agent *domain.Agent) (bool, error) {
	query := `
		INSERT INTO agents (
			external_id, first_name, last_name, slug, email, phone, position,
			image_path, is_active, last_activity_external
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (external_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			slug = EXCLUDED.slug,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			position = EXCLUDED.position,
			image_path = EXCLUDED.image_path,
			is_active = EXCLUDED.is_active,
			last_activity_external = EXCLUDED.last_activity_external,
			local_updated_at = NOW()
		RETURNING id, (xmax = 0) AS created`

	var created bool
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		agent.ExternalID,
		agent.FirstName,
		agent.LastName,
		agent.Slug,
		agent.Email,
		agent.Phone,
		agent.Position,
		agent.ImagePath,
		agent.IsActive,
		agent.LastActivityExternal,
	).Scan(&agent.ID, &created)
	if err != nil {
		return false, err
	}

	return created, nil
}

// DeactivateMissing clears is_active on every agent not in keep.
func (s *AgentStore) DeactivateMissing(ctx context.Context, keep []int64) (int64, error) {
	if keep == nil {
		keep = []int64{}
	}

	query := `
		UPDATE agents
		SET is_active = FALSE, local_updated_at = NOW()
		WHERE is_active AND NOT (external_id = ANY($1))`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, pq.Array(keep))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SlugOwner reports which agent, active or not, holds slug.
func (s *AgentStore) SlugOwner(ctx context.Context, slug string) (int64, bool, error) {
	var externalID int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &externalID,
		"SELECT external_id FROM agents WHERE slug = $1", slug)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return externalID, true, nil
}

// GetByExternalID returns nil, nil when the agent does not exist.
func (s *AgentStore) GetByExternalID(ctx context.Context, externalID int64) (*domain.Agent, error) {
	var agent domain.Agent
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &agent,
		"SELECT * FROM agents WHERE external_id = $1", externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}
