package entity

import "time"

// Attachment records metadata for a file uploaded against a request. The
// file content itself lives with the external storage collaborator; the
// engine only needs the category to validate required-attachment rules.
type Attachment struct {
	ID         int64     `json:"id"`
	RequestID  int64     `json:"request_id"`
	Category   string    `json:"category"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}
