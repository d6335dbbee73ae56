package models

import "time"

// ConnectionState describes the push-channel connection of a session.
type ConnectionState string

const (
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// View is the active tab of the session UI.
type View string

const (
	ViewUpload  View = "upload"
	ViewResults View = "results"
)

// Valid reports whether v names a known view.
func (v View) Valid() bool {
	return v == ViewUpload || v == ViewResults
}

// Notification is a short-lived message shown to the user.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionSnapshot is a point-in-time copy of a session's state.
type SessionSnapshot struct {
	ClientID      string             `json:"clientId"`
	Connection    ConnectionState    `json:"connection"`
	View          View               `json:"view"`
	Files         []FileRecord       `json:"files"`
	Results       []ExtractionResult `json:"results"`
	Selected      []string           `json:"selected"`
	Notifications []Notification     `json:"notifications"`
	Version       uint64             `json:"version"`
}
