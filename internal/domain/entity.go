package domain

import (
	"time"

	"github.com/google/uuid"
)

type Entity struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type EntityRevision struct {
	ID         uuid.UUID `json:"id"`
	EntityID   uuid.UUID `json:"entity_id"`
	Slug       string    `json:"slug"`
	Summary    string    `json:"summary,omitempty"`
	UICategory string    `json:"ui_category,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
