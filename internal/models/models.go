package models

import "time"

// Metadata is the searchable block attached to a file at upload time.
// Tags is a single free-text string, not a list of discrete tags.
type Metadata struct {
	Tags        string `json:"tags"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

// File represents file metadata stored in the registry
type File struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ChunkCount  int       `json:"chunk_count"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Metadata    Metadata  `json:"metadata"`
}

// IsImage reports whether the file is eligible for inline display.
func (f *File) IsImage() bool {
	return f.ContentType == "image/jpeg" || f.ContentType == "image/png"
}
