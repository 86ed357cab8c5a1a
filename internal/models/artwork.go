package models

import "time"

// Artwork is an uploaded piece, always stored in the uploader's family
type Artwork struct {
	ID            int64
	FamilyID      int64
	ChildID       *int64
	UploadedBy    int64
	Title         string
	ImageKey      string
	IsFavorite    bool
	Tags          []string
	AIDescription string
	CreatedAt     time.Time
}

// ArtworkRef is the part of an artwork the deletion workflow needs
type ArtworkRef struct {
	ID       int64
	ImageKey string
}
