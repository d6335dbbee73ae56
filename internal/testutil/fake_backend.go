package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/profile-desk/backend/internal/models"
)

// FakeUpload is one file received by FakeBackend.
type FakeUpload struct {
	ClientID string
	FileName string
	Body     []byte
	JobID    string
}

// FakeBackend imitates the extraction service: multipart uploads on
// /extract/{client} and a push channel on /ws/{client}.
type FakeBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	conns    map[string][]*websocket.Conn
	uploads  []FakeUpload
	failCode int
	jobSeq   int

	// AutoComplete pushes processing and completed events after every
	// accepted upload. Profile builds the extracted payload.
	AutoComplete bool
	Profile      func(fileName string) models.CompanyProfile
}

// NewFakeBackend starts the fake service.
func NewFakeBackend() *FakeBackend {
	f := &FakeBackend{conns: make(map[string][]*websocket.Conn)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /extract/{client}", f.handleExtract)
	mux.HandleFunc("GET /ws/{client}", f.handleWS)
	f.Server = httptest.NewServer(mux)
	return f
}

// APIBase is the upload base URL.
func (f *FakeBackend) APIBase() string {
	return f.Server.URL
}

// WSBase is the push-channel base URL.
func (f *FakeBackend) WSBase() string {
	return "ws" + strings.TrimPrefix(f.Server.URL, "http") + "/ws"
}

// FailUploads makes every following upload answer with code. Zero restores
// normal behavior.
func (f *FakeBackend) FailUploads(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCode = code
}

// Uploads returns the uploads received so far.
func (f *FakeBackend) Uploads() []FakeUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeUpload(nil), f.uploads...)
}

// Connected reports how many push connections the client has open.
func (f *FakeBackend) Connected(clientID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns[clientID])
}

// WaitConnected polls until the client has a push connection.
func (f *FakeBackend) WaitConnected(clientID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f.Connected(clientID) > 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// Push sends an event to every connection of the client.
func (f *FakeBackend) Push(clientID string, ev models.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.PushRaw(clientID, data)
}

// PushRaw sends raw bytes to every connection of the client.
func (f *FakeBackend) PushRaw(clientID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conns := f.conns[clientID]
	if len(conns) == 0 {
		return fmt.Errorf("no connection for client %s", clientID)
	}
	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// Drop closes every push connection of the client.
func (f *FakeBackend) Drop(clientID string) {
	f.mu.Lock()
	conns := f.conns[clientID]
	delete(f.conns, clientID)
	f.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Close shuts the fake service down.
func (f *FakeBackend) Close() {
	f.mu.Lock()
	var all []*websocket.Conn
	for _, conns := range f.conns {
		all = append(all, conns...)
	}
	f.conns = make(map[string][]*websocket.Conn)
	f.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	f.Server.Close()
}

func (f *FakeBackend) handleExtract(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client")

	f.mu.Lock()
	failCode := f.failCode
	f.mu.Unlock()
	if failCode != 0 {
		http.Error(w, "extraction unavailable", failCode)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	body, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.jobSeq++
	jobID := fmt.Sprintf("job-%d", f.jobSeq)
	f.uploads = append(f.uploads, FakeUpload{ClientID: clientID, FileName: header.Filename, Body: body, JobID: jobID})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.UploadResponse{
		JobID:    jobID,
		ClientID: clientID,
		Status:   models.FileStatusQueued,
		Message:  "File queued for processing",
	})

	if f.AutoComplete {
		go f.complete(clientID, jobID, header.Filename)
	}
}

func (f *FakeBackend) complete(clientID, jobID, fileName string) {
	profile := models.CompanyProfile{Name: strings.TrimSuffix(fileName, ".pdf")}
	if f.Profile != nil {
		profile = f.Profile(fileName)
	}
	f.Push(clientID, models.StatusEvent{JobID: jobID, Status: models.FileStatusProcessing, Message: "Extracting " + fileName})
	f.Push(clientID, models.StatusEvent{
		JobID:   jobID,
		Status:  models.FileStatusCompleted,
		Message: "Extraction completed for " + fileName,
		Data:    &models.EventPayload{File: fileName, Extracted: profile},
	})
}

var fakeUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (f *FakeBackend) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client")
	conn, err := fakeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.conns[clientID] = append(f.conns[clientID], conn)
	f.mu.Unlock()

	// drain until the client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	f.mu.Lock()
	conns := f.conns[clientID]
	for i, c := range conns {
		if c == conn {
			f.conns[clientID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(f.conns[clientID]) == 0 {
		delete(f.conns, clientID)
	}
	f.mu.Unlock()
	conn.Close()
}
