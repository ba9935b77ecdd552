package domain

import (
	"time"

	"github.com/google/uuid"
)

type Source struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceRevision is one snapshot of a source's bibliographic data.
// TrustLevel reflects evidentiary strength (study design) and lies in [0, 1].
type SourceRevision struct {
	ID         uuid.UUID `json:"id"`
	SourceID   uuid.UUID `json:"source_id"`
	Title      string    `json:"title"`
	Authors    []string  `json:"authors,omitempty"`
	Year       *int      `json:"year,omitempty"`
	Origin     string    `json:"origin,omitempty"`
	URL        string    `json:"url,omitempty"`
	TrustLevel float64   `json:"trust_level"`
	Document   string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
