package models

import "time"

// FileStatus represents where a selected file is in the extraction lifecycle.
type FileStatus string

const (
	FileStatusUploaded   FileStatus = "uploaded"
	FileStatusSubmitted  FileStatus = "submitted"
	FileStatusQueued     FileStatus = "queued"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusError      FileStatus = "error"
)

// IsTerminal reports whether no further events are expected for the status.
func (s FileStatus) IsTerminal() bool {
	return s == FileStatusCompleted || s == FileStatusError
}

// FileRecord is the client-side record of one selected file.
type FileRecord struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Size      int64      `json:"size"`
	Type      string     `json:"type"`
	Status    FileStatus `json:"status"`
	FileID    string     `json:"fileId"` // staged bytes in storage
	JobID     string     `json:"jobId,omitempty"`
	ClientID  string     `json:"clientId,omitempty"`
	Progress  string     `json:"progress,omitempty"`
	PageCount int        `json:"pageCount,omitempty"`
	Checksum  string     `json:"checksum,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
