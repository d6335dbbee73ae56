package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-desk/backend/internal/models"
)

func dialFeed(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFeed(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func readSnapshot(t *testing.T, conn *websocket.Conn) models.SessionSnapshot {
	t.Helper()
	for {
		msg := readFeed(t, conn)
		if msg.Type != MsgTypeSnapshot {
			continue
		}
		var snap models.SessionSnapshot
		require.NoError(t, json.Unmarshal(msg.Payload, &snap))
		return snap
	}
}

func TestFeed_StreamsSnapshots(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.e)
	defer srv.Close()

	id := ts.createSession(t)
	conn := dialFeed(t, srv, id)

	first := readSnapshot(t, conn)
	assert.Equal(t, id, first.ClientID)
	assert.Empty(t, first.Files)

	body, ct := multipartBody(t, formFile{"acme.pdf", "%PDF-1.4"})
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)

	var snap models.SessionSnapshot
	for len(snap.Files) == 0 {
		snap = readSnapshot(t, conn)
	}
	assert.Equal(t, "acme.pdf", snap.Files[0].Name)
	assert.Greater(t, snap.Version, first.Version)
}

func TestFeed_PingPong(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.e)
	defer srv.Close()

	id := ts.createSession(t)
	conn := dialFeed(t, srv, id)
	readSnapshot(t, conn)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypePing}))
	for {
		msg := readFeed(t, conn)
		if msg.Type == MsgTypePong {
			break
		}
	}
}

func TestFeed_SessionClosed(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.e)
	defer srv.Close()

	id := ts.createSession(t)
	conn := dialFeed(t, srv, id)
	readSnapshot(t, conn)

	require.NoError(t, ts.sessions.Close(id))
	for {
		msg := readFeed(t, conn)
		if msg.Type == MsgTypeClosed {
			break
		}
	}
}

func TestFeed_UnknownSession(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/missing/feed"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
