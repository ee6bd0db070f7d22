package domain

import (
	"path"
	"time"

	"estate_sync/internal/textnorm"
)

// Agent is a member of the upstream agent roster.
type Agent struct {
	ID                   int64      `db:"id"`
	ExternalID           int64      `db:"external_id"`
	FirstName            string     `db:"first_name"`
	LastName             string     `db:"last_name"`
	Slug                 string     `db:"slug"`
	Email                *string    `db:"email"`
	Phone                *string    `db:"phone"`
	Position             *string    `db:"position"`
	ImagePath            string     `db:"image_path"`
	IsActive             bool       `db:"is_active"`
	LastActivityExternal *time.Time `db:"last_activity_external"`
	CreatedAt            time.Time  `db:"local_created_at"`
	UpdatedAt            time.Time  `db:"local_updated_at"`
}

// AgentSlug derives the URL key from an agent's name: diacritics stripped,
// lowercased, words joined by hyphens.
func AgentSlug(firstName, lastName string) string {
	return textnorm.Slug(firstName, lastName)
}

// AgentImagePath is where the site expects the portrait for slug.
func AgentImagePath(dir, slug string) string {
	return path.Join(dir, slug+".jpg")
}
