package models

import "encoding/json"

// StatusEvent is one message received on the backend push channel.
type StatusEvent struct {
	JobID   string     `json:"job_id"`
	Status  FileStatus `json:"status"`
	Message string     `json:"message"`
	// Timestamp is informational only; the backend sends either an ISO
	// string or epoch seconds.
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Data      *EventPayload   `json:"data,omitempty"`
}

// EventPayload is attached to the terminal success event only.
type EventPayload struct {
	File      string         `json:"file"`
	Extracted CompanyProfile `json:"extracted"`
}

// UploadResponse is the job descriptor returned by the extraction endpoint.
type UploadResponse struct {
	JobID    string     `json:"job_id"`
	ClientID string     `json:"client_id"`
	Status   FileStatus `json:"status"`
	Message  string     `json:"message"`
}
