package models

import "time"

// ShareResourceType names what a share link points at
type ShareResourceType string

const (
	ShareArtwork    ShareResourceType = "artwork"
	ShareCollection ShareResourceType = "collection" // a whole family
)

// ShareLink exposes an artwork or a family collection through a short code
type ShareLink struct {
	ID           int64
	Code         string
	ResourceType ShareResourceType
	ResourceID   int64
	CreatedBy    *int64
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}
