package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/auth"
	"github.com/KevinKickass/OpenShmInspector/internal/config"
	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

const testSecret = "websocket-test-secret-with-enough-length"

type staticStatus struct{}

func (staticStatus) GetStatus() any { return map[string]string{"state": "running"} }

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()

	t.Setenv("OSI_WS_TEST_SECRET", testSecret)
	svc := auth.NewAuthService(config.AuthConfig{JWTSecretEnv: "OSI_WS_TEST_SECRET"}, zaptest.NewLogger(t))

	hub := NewHub(zaptest.NewLogger(t), svc)
	hub.SetStatusProvider(staticStatus{})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func token(t *testing.T) string {
	t.Helper()
	tok, _, err := auth.NewJWTHandler(testSecret, time.Minute).GenerateAccessToken("vera", auth.RoleViewer)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	return tok
}

type received struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func dialAuthenticated(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token(t)}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypeAuthSuccess {
		t.Fatalf("expected auth_success, got %s", msg.Type)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypeSystemStatus {
		t.Fatalf("expected system_status, got %s", msg.Type)
	}
	return conn
}

func infos() []registry.Info {
	return []registry.Info{
		{ID: "int_d_1", Name: "speed", Value: "00042"},
		{ID: "bool_X_2", Name: "valve", Value: "1"},
	}
}

func TestAuthAndBroadcast(t *testing.T) {
	hub, url := startHub(t)
	conn := dialAuthenticated(t, url)

	if n := hub.GetClientCount(); n != 1 {
		t.Errorf("expected 1 client, got %d", n)
	}

	hub.EntriesUpdated(infos())

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeEntriesUpdated {
		t.Fatalf("expected entries_updated, got %s", msg.Type)
	}
	var got []registry.Info
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(got) != 2 || got[0].Value != "00042" {
		t.Errorf("unexpected entries %+v", got)
	}

	hub.RefreshFailed(shm.BankAO, errors.New("shm-format timed out"))
	msg = readMessage(t, conn)
	if msg.Type != MessageTypeRefreshFailed {
		t.Fatalf("expected refresh_failed, got %s", msg.Type)
	}
	var failed RefreshFailedData
	json.Unmarshal(msg.Data, &failed)
	if failed.Bank != "AO" || failed.Error != "shm-format timed out" {
		t.Errorf("unexpected payload %+v", failed)
	}
}

func TestSubscription(t *testing.T) {
	hub, url := startHub(t)
	conn := dialAuthenticated(t, url)

	conn.WriteJSON(map[string]any{"type": "subscribe", "entries": []string{"bool_X_2"}})
	if msg := readMessage(t, conn); msg.Type != MessageTypeSubscribed {
		t.Fatalf("expected subscribed, got %s", msg.Type)
	}

	hub.EntriesUpdated(infos()[:1])
	hub.EntriesUpdated(infos())

	msg := readMessage(t, conn)
	var got []registry.Info
	json.Unmarshal(msg.Data, &got)
	if len(got) != 1 || got[0].ID != "bool_X_2" {
		t.Errorf("expected only bool_X_2, got %+v", got)
	}
}

func TestAuthRejected(t *testing.T) {
	tests := []struct {
		name string
		msg  map[string]string
	}{
		{"not auth", map[string]string{"type": "subscribe"}},
		{"missing token", map[string]string{"type": "auth"}},
		{"bad token", map[string]string{"type": "auth", "token": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, url := startHub(t)

			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Fatalf("dial failed: %v", err)
			}
			defer conn.Close()

			conn.WriteJSON(tt.msg)
			if msg := readMessage(t, conn); msg.Type != MessageTypeAuthFailed {
				t.Errorf("expected auth_failed, got %s", msg.Type)
			}
			if n := hub.GetClientCount(); n != 0 {
				t.Errorf("expected no registered clients, got %d", n)
			}
		})
	}
}
