package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"ghostchat/pkg/config"
	"ghostchat/pkg/security"
	"ghostchat/pkg/store"
)

func testGateway(t *testing.T) *Gateway {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	env, err := security.NewEnvelope("test-passphrase")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	cfg := config.Default()
	cfg.Chat.ReconnectBackoff = config.Duration(50 * time.Millisecond)
	cfg.Chat.RetryBase = config.Duration(10 * time.Millisecond)
	cfg.Chat.DeliveryDelay = config.Duration(20 * time.Millisecond)
	cfg.Chat.PingInterval = 0
	cfg.Server.SendRPS = 1000
	cfg.Server.SendBurst = 1000
	g := New(cfg, st, env, nil)
	t.Cleanup(g.shutdown)
	return g
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func newSessionID(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/v1/sessions", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp["session"]
}

func TestGateway_Suite(t *testing.T) {
	t.Run("HealthAndReady", func(t *testing.T) {
		g := testGateway(t)
		h := g.Router()
		if rr := doJSON(t, h, http.MethodGet, "/healthz", nil); rr.Code != http.StatusOK {
			t.Fatalf("healthz: %d", rr.Code)
		}
		if rr := doJSON(t, h, http.MethodGet, "/readyz", nil); rr.Code != http.StatusOK {
			t.Fatalf("readyz: %d", rr.Code)
		}
	})

	t.Run("SessionLifecycle", func(t *testing.T) {
		g := testGateway(t)
		h := g.Router()
		sid := newSessionID(t, h)

		rr := doJSON(t, h, http.MethodPost, "/v1/sessions/"+sid+"/join",
			map[string]string{"room": "room_gw_test"})
		if rr.Code != http.StatusOK {
			t.Fatalf("join: %d %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, h, http.MethodPost, "/v1/sessions/"+sid+"/messages",
			map[string]interface{}{"text": "hello gateway"})
		if rr.Code != http.StatusCreated {
			t.Fatalf("send: %d %s", rr.Code, rr.Body.String())
		}
		var sent map[string]string
		_ = json.Unmarshal(rr.Body.Bytes(), &sent)

		deadline := time.Now().Add(2 * time.Second)
		for {
			rr = doJSON(t, h, http.MethodGet, "/v1/sessions/"+sid+"/messages", nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("list: %d", rr.Code)
			}
			var view struct {
				Messages []struct {
					ID   string `json:"id"`
					Text string `json:"text"`
				} `json:"messages"`
			}
			_ = json.Unmarshal(rr.Body.Bytes(), &view)
			found := false
			for _, m := range view.Messages {
				if m.ID == sent["id"] && m.Text == "hello gateway" {
					found = true
				}
			}
			if found {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("message never listed: %s", rr.Body.String())
			}
			time.Sleep(10 * time.Millisecond)
		}

		rr = doJSON(t, h, http.MethodDelete, "/v1/sessions/"+sid, nil)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("close session: %d", rr.Code)
		}
		rr = doJSON(t, h, http.MethodGet, "/v1/sessions/"+sid+"/messages", nil)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("closed session still served: %d", rr.Code)
		}
	})

	t.Run("UnknownSessionIs404", func(t *testing.T) {
		g := testGateway(t)
		h := g.Router()
		rr := doJSON(t, h, http.MethodPost, "/v1/sessions/session_nope/join",
			map[string]string{"room": "room_gw_test"})
		if rr.Code != http.StatusNotFound {
			t.Fatalf("code = %d, want 404", rr.Code)
		}
	})

	t.Run("BadRoomRejected", func(t *testing.T) {
		g := testGateway(t)
		h := g.Router()
		sid := newSessionID(t, h)
		rr := doJSON(t, h, http.MethodPost, "/v1/sessions/"+sid+"/join",
			map[string]string{"room": "a b"})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("code = %d, want 400", rr.Code)
		}
	})

	t.Run("SendWithoutRoomConflicts", func(t *testing.T) {
		g := testGateway(t)
		h := g.Router()
		sid := newSessionID(t, h)
		rr := doJSON(t, h, http.MethodPost, "/v1/sessions/"+sid+"/messages",
			map[string]interface{}{"text": "nowhere"})
		if rr.Code != http.StatusConflict {
			t.Fatalf("code = %d, want 409", rr.Code)
		}
	})

	t.Run("SendFloodLimited", func(t *testing.T) {
		g := testGateway(t)
		g.limiter = newLimiterPool(1, 2)
		h := g.Router()
		sid := newSessionID(t, h)
		rr := doJSON(t, h, http.MethodPost, "/v1/sessions/"+sid+"/join",
			map[string]string{"room": "room_gw_flood"})
		if rr.Code != http.StatusOK {
			t.Fatalf("join: %d", rr.Code)
		}
		var limited bool
		for i := 0; i < 10; i++ {
			rr = doJSON(t, h, http.MethodPost, "/v1/sessions/"+sid+"/messages",
				map[string]interface{}{"text": fmt.Sprintf("flood %d", i)})
			if rr.Code == http.StatusTooManyRequests {
				limited = true
				break
			}
		}
		if !limited {
			t.Fatal("flood was never limited")
		}
	})

	t.Run("PanicWipeAccepted", func(t *testing.T) {
		g := testGateway(t)
		h := g.Router()
		sid := newSessionID(t, h)
		rr := doJSON(t, h, http.MethodPost, "/v1/sessions/"+sid+"/join",
			map[string]string{"room": "room_gw_wipe"})
		if rr.Code != http.StatusOK {
			t.Fatalf("join: %d", rr.Code)
		}
		rr = doJSON(t, h, http.MethodPost, "/v1/sessions/"+sid+"/messages",
			map[string]interface{}{"text": "doomed"})
		if rr.Code != http.StatusCreated {
			t.Fatalf("send: %d", rr.Code)
		}
		rr = doJSON(t, h, http.MethodPost, "/v1/sessions/"+sid+"/wipe", nil)
		if rr.Code != http.StatusAccepted {
			t.Fatalf("wipe: %d %s", rr.Code, rr.Body.String())
		}
		rr = doJSON(t, h, http.MethodGet, "/v1/sessions/"+sid+"/messages", nil)
		var view struct {
			Room     string            `json:"room"`
			Messages []json.RawMessage `json:"messages"`
		}
		_ = json.Unmarshal(rr.Body.Bytes(), &view)
		if view.Room != "" || len(view.Messages) != 0 {
			t.Fatalf("view not cleared after wipe: %s", rr.Body.String())
		}
	})

	t.Run("StatsEndpoint", func(t *testing.T) {
		g := testGateway(t)
		h := g.Router()
		sid := newSessionID(t, h)
		rr := doJSON(t, h, http.MethodGet, "/v1/sessions/"+sid+"/stats", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("stats: %d", rr.Code)
		}
		var resp struct {
			Connection struct {
				Quality string `json:"quality"`
			} `json:"connection"`
			State string `json:"state"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.State != "idle" {
			t.Fatalf("state = %q, want idle", resp.State)
		}
	})
}
