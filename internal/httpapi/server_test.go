package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ariadne-ai/aria/internal/attention"
	"github.com/ariadne-ai/aria/internal/config"
	"github.com/ariadne-ai/aria/internal/live"
	"github.com/ariadne-ai/aria/internal/protocol"
)

type stubOrchestrator struct {
	mu         sync.Mutex
	texts      []string
	processErr error
	state      live.State
}

func (s *stubOrchestrator) ProcessText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processErr != nil {
		return s.processErr
	}
	s.texts = append(s.texts, text)
	return nil
}

func (s *stubOrchestrator) State() live.State { return s.state }

// RunConnection echoes each client_text back as one assistant delta plus a
// turn end, enough to exercise the relay.
func (s *stubOrchestrator) RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			if m, ok := msg.(protocol.ClientText); ok {
				outbound <- protocol.AssistantTextDelta{
					Type:      protocol.TypeAssistantTextDelta,
					TurnID:    "t1",
					TextDelta: "echo: " + m.Text,
				}
				outbound <- protocol.AssistantTurnEnd{
					Type:   protocol.TypeAssistantTurnEnd,
					TurnID: "t1",
					Reason: "complete",
				}
			}
		}
	}
}

type stubAttention struct {
	mu        sync.Mutex
	items     []attention.Item
	dismissed []string
	snoozed   map[string]time.Duration
}

func (s *stubAttention) Items() []attention.Item { return s.items }

func (s *stubAttention) Dismiss(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissed = append(s.dismissed, id)
}

func (s *stubAttention) Snooze(id string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snoozed == nil {
		s.snoozed = map[string]time.Duration{}
	}
	s.snoozed[id] = d
}

func newTestServer(orch *stubOrchestrator, attn *stubAttention) *httptest.Server {
	srv := New(config.Config{AllowAnyOrigin: true}, orch, attn, nil)
	return httptest.NewServer(srv.Router())
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(&stubOrchestrator{state: live.StateActive}, &stubAttention{})
	defer ts.Close()

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	readyRes, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer readyRes.Body.Close()
	var ready map[string]any
	if err := json.NewDecoder(readyRes.Body).Decode(&ready); err != nil {
		t.Fatalf("decode ready response: %v", err)
	}
	if ready["session"] != string(live.StateActive) {
		t.Fatalf("ready session = %v, want active", ready["session"])
	}
}

func TestCreateTurn(t *testing.T) {
	orch := &stubOrchestrator{state: live.StateActive}
	ts := newTestServer(orch, &stubAttention{})
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"text": "what's my balance"})
	res, err := http.Post(ts.URL+"/v1/turns", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/turns error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("turn status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}
	if len(orch.texts) != 1 || orch.texts[0] != "what's my balance" {
		t.Fatalf("orchestrator received %v", orch.texts)
	}
}

func TestCreateTurnValidation(t *testing.T) {
	ts := newTestServer(&stubOrchestrator{}, &stubAttention{})
	defer ts.Close()

	res, err := http.Post(ts.URL+"/v1/turns", "application/json", strings.NewReader(`{"text":""}`))
	if err != nil {
		t.Fatalf("POST /v1/turns error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty text status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestCreateTurnSessionUnavailable(t *testing.T) {
	orch := &stubOrchestrator{processErr: live.ErrNotConnected}
	ts := newTestServer(orch, &stubAttention{})
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"text": "hello"})
	res, err := http.Post(ts.URL+"/v1/turns", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/turns error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("disconnected turn status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestAttentionEndpoints(t *testing.T) {
	attn := &stubAttention{items: []attention.Item{
		attention.NewItem("m1", attention.ItemEmailFollowup, "Reply to Dana", 0.8, attention.SourceMail),
	}}
	ts := newTestServer(&stubOrchestrator{}, attn)
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/attention")
	if err != nil {
		t.Fatalf("GET /v1/attention error = %v", err)
	}
	defer res.Body.Close()
	var listing struct {
		Items []attention.Item `json:"items"`
		Count int              `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&listing); err != nil {
		t.Fatalf("decode attention listing: %v", err)
	}
	if listing.Count != 1 || listing.Items[0].ID != "m1" {
		t.Fatalf("attention listing = %+v", listing)
	}

	dres, err := http.Post(ts.URL+"/v1/attention/m1/dismiss", "application/json", nil)
	if err != nil {
		t.Fatalf("POST dismiss error = %v", err)
	}
	dres.Body.Close()
	if dres.StatusCode != http.StatusOK || len(attn.dismissed) != 1 || attn.dismissed[0] != "m1" {
		t.Fatalf("dismiss status = %d, dismissed = %v", dres.StatusCode, attn.dismissed)
	}

	sbody := strings.NewReader(`{"duration_ms":60000}`)
	sres, err := http.Post(ts.URL+"/v1/attention/m1/snooze", "application/json", sbody)
	if err != nil {
		t.Fatalf("POST snooze error = %v", err)
	}
	sres.Body.Close()
	if sres.StatusCode != http.StatusOK || attn.snoozed["m1"] != time.Minute {
		t.Fatalf("snooze status = %d, snoozed = %v", sres.StatusCode, attn.snoozed)
	}
}

func TestSnoozeDefaultsDuration(t *testing.T) {
	attn := &stubAttention{}
	ts := newTestServer(&stubOrchestrator{}, attn)
	defer ts.Close()

	res, err := http.Post(ts.URL+"/v1/attention/x1/snooze", "application/json", nil)
	if err != nil {
		t.Fatalf("POST snooze error = %v", err)
	}
	res.Body.Close()
	if attn.snoozed["x1"] != time.Hour {
		t.Fatalf("default snooze = %v, want 1h", attn.snoozed["x1"])
	}
}

func TestStreamWSRelaysTurn(t *testing.T) {
	ts := newTestServer(&stubOrchestrator{state: live.StateActive}, &stubAttention{})
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial /v1/stream error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"type": "client_text", "text": "hi"}); err != nil {
		t.Fatalf("write client_text error = %v", err)
	}

	var sawDelta, sawEnd bool
	deadline := time.Now().Add(3 * time.Second)
	for !(sawDelta && sawEnd) {
		_ = conn.SetReadDeadline(deadline)
		var raw map[string]any
		if err := conn.ReadJSON(&raw); err != nil {
			t.Fatalf("read relay message: %v (delta=%v end=%v)", err, sawDelta, sawEnd)
		}
		switch raw["type"] {
		case string(protocol.TypeAssistantTextDelta):
			if raw["text_delta"] != "echo: hi" {
				t.Fatalf("delta = %v", raw["text_delta"])
			}
			sawDelta = true
		case string(protocol.TypeAssistantTurnEnd):
			sawEnd = true
		}
	}
}

func TestStreamWSReportsInvalidClientMessage(t *testing.T) {
	ts := newTestServer(&stubOrchestrator{}, &stubAttention{})
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial /v1/stream error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"type": "assistant_text_delta"}); err != nil {
		t.Fatalf("write error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var raw map[string]any
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("read error event: %v", err)
	}
	if raw["type"] != string(protocol.TypeErrorEvent) || raw["code"] != "invalid_client_message" {
		t.Fatalf("error event = %v", raw)
	}
}
