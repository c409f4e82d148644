package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeRemote struct {
	srv      *httptest.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	inbound  chan json.RawMessage
	upgrades int
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	f := &fakeRemote{inbound: make(chan json.RawMessage, 64)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.upgrades++
		f.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.inbound <- json.RawMessage(data)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRemote) baseURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeRemote) upgradeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upgrades
}

func (f *fakeRemote) send(t *testing.T, payload string) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		t.Fatalf("send: no upgraded connection")
	}
	conn := f.conns[len(f.conns)-1]
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func (f *fakeRemote) dropConnection(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		t.Fatalf("dropConnection: no upgraded connection")
	}
	_ = f.conns[len(f.conns)-1].Close()
}

func (f *fakeRemote) recvFrame(t *testing.T) map[string]any {
	t.Helper()
	select {
	case raw := <-f.inbound:
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("recvFrame: invalid json %q: %v", raw, err)
		}
		return out
	case <-time.After(2 * time.Second):
		t.Fatalf("recvFrame: timed out")
		return nil
	}
}

func testClient(f *fakeRemote) *Client {
	return NewClient(Config{
		APIKey:             "test-key",
		BaseURL:            f.baseURL(),
		Model:              "models/test-live",
		Voice:              "Aoede",
		SystemInstruction:  "You are a test persona.",
		ResponseModalities: []string{"TEXT"},
		ConnectTimeout:     2 * time.Second,
		ConnectPoll:        20 * time.Millisecond,
	})
}

func mustConnect(t *testing.T, c *Client, f *fakeRemote) {
	t.Helper()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	// Consume the setup frame so later assertions see only turn traffic.
	frame := f.recvFrame(t)
	if _, ok := frame["setup"]; !ok {
		t.Fatalf("first frame = %v, want setup", frame)
	}
}

func TestConnectWithoutCredentialNeverDials(t *testing.T) {
	f := newFakeRemote(t)
	c := NewClient(Config{BaseURL: f.baseURL()})

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("Connect() error = %v, want ErrMissingCredential", err)
	}
	if got := f.upgradeCount(); got != 0 {
		t.Fatalf("upgrade count = %d, want 0 (no transport attempt)", got)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("State() = %q, want %q", c.State(), StateDisconnected)
	}
}

func TestConnectRejectsUnparsableEndpoint(t *testing.T) {
	c := NewClient(Config{APIKey: "k", BaseURL: "wss://bad host\x7f"})
	if err := c.Connect(context.Background()); !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("Connect() error = %v, want ErrInvalidEndpoint", err)
	}
}

func TestConnectTimesOutWhenTransportNeverOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
	}))
	defer srv.Close()

	c := NewClient(Config{
		APIKey:         "k",
		BaseURL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		ConnectTimeout: 200 * time.Millisecond,
		ConnectPoll:    20 * time.Millisecond,
	})
	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnectionTimeout) {
		t.Fatalf("Connect() error = %v, want ErrConnectionTimeout", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("State() = %q, want %q", c.State(), StateDisconnected)
	}
}

func TestConnectSendsSetupFrame(t *testing.T) {
	f := newFakeRemote(t)
	c := testClient(f)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	frame := f.recvFrame(t)
	setup, ok := frame["setup"].(map[string]any)
	if !ok {
		t.Fatalf("first frame = %v, want setup object", frame)
	}
	if setup["model"] != "models/test-live" {
		t.Fatalf("setup.model = %v, want models/test-live", setup["model"])
	}
	si, _ := setup["systemInstruction"].(map[string]any)
	if si == nil {
		t.Fatalf("setup.systemInstruction missing in %v", setup)
	}
	if c.State() != StateActive {
		t.Fatalf("State() = %q, want %q", c.State(), StateActive)
	}
}

func TestSendOperationsRequireActiveSession(t *testing.T) {
	f := newFakeRemote(t)
	c := testClient(f)

	if err := c.SendText("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendText() error = %v, want ErrNotConnected", err)
	}
	if err := c.StreamAudio([]byte{1, 2}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("StreamAudio() error = %v, want ErrNotConnected", err)
	}
	if err := c.EndAudioStream(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("EndAudioStream() error = %v, want ErrNotConnected", err)
	}
	if err := c.InjectContext("ctx"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("InjectContext() error = %v, want ErrNotConnected", err)
	}
}

func TestSendTextCompletesTurnInOneFrame(t *testing.T) {
	f := newFakeRemote(t)
	c := testClient(f)
	mustConnect(t, c, f)
	defer c.Disconnect()

	if err := c.SendText("what's on my calendar today"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if !c.PendingTurn() {
		t.Fatalf("PendingTurn() = false after SendText, want true")
	}

	frame := f.recvFrame(t)
	cc, _ := frame["clientContent"].(map[string]any)
	if cc == nil {
		t.Fatalf("frame = %v, want clientContent", frame)
	}
	if cc["turnComplete"] != true {
		t.Fatalf("clientContent.turnComplete = %v, want true", cc["turnComplete"])
	}
	turns, _ := cc["turns"].([]any)
	if len(turns) != 1 {
		t.Fatalf("clientContent.turns = %v, want one turn", cc["turns"])
	}
}

func TestInjectContextUsesToolResponseChannel(t *testing.T) {
	f := newFakeRemote(t)
	c := testClient(f)
	mustConnect(t, c, f)
	defer c.Disconnect()

	if err := c.InjectContext("today's calendar: dentist 15:00"); err != nil {
		t.Fatalf("InjectContext() error = %v", err)
	}
	frame := f.recvFrame(t)
	if _, ok := frame["toolResponse"]; !ok {
		t.Fatalf("frame = %v, want toolResponse (context must not be a spoken turn)", frame)
	}
	if _, ok := frame["clientContent"]; ok {
		t.Fatalf("context update leaked into clientContent: %v", frame)
	}
}

func TestResponseChunksDeliveredInReceiptOrder(t *testing.T) {
	f := newFakeRemote(t)
	c := testClient(f)

	chunks := make(chan ResponseChunk, 16)
	audio := make(chan []byte, 16)
	transcripts := make(chan string, 16)
	c.OnResponse(func(ch ResponseChunk) { chunks <- ch })
	c.OnAudio(func(pcm []byte) { audio <- pcm })
	c.OnTranscript(func(text string) { transcripts <- text })

	mustConnect(t, c, f)
	defer c.Disconnect()

	f.send(t, `{"serverContent":{"inputTranscript":"what's the weather"}}`)
	f.send(t, `{"serverContent":{"modelTurn":{"parts":[{"text":"It is "}]}}}`)
	pcm := base64.StdEncoding.EncodeToString([]byte{9, 9, 9})
	f.send(t, `{"serverContent":{"modelTurn":{"parts":[{"text":"sunny."},{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"`+pcm+`"}}]},"turnComplete":true}}`)

	if got := recvChunk(t, chunks); got.Kind != ChunkText || got.Text != "It is " {
		t.Fatalf("chunk 1 = %+v, want text %q", got, "It is ")
	}
	if got := recvChunk(t, chunks); got.Kind != ChunkText || got.Text != "sunny." {
		t.Fatalf("chunk 2 = %+v, want text %q", got, "sunny.")
	}
	if got := recvChunk(t, chunks); got.Kind != ChunkTurnComplete {
		t.Fatalf("chunk 3 = %+v, want turn_complete", got)
	}

	select {
	case got := <-transcripts:
		if got != "what's the weather" {
			t.Fatalf("transcript = %q, want input transcript", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("transcript callback never fired")
	}
	select {
	case got := <-audio:
		if len(got) != 3 || got[0] != 9 {
			t.Fatalf("audio = %v, want decoded pcm", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("audio callback never fired")
	}
}

func TestToolCallChunkCarriesStringifiedArgs(t *testing.T) {
	f := newFakeRemote(t)
	c := testClient(f)
	chunks := make(chan ResponseChunk, 4)
	c.OnResponse(func(ch ResponseChunk) { chunks <- ch })
	mustConnect(t, c, f)
	defer c.Disconnect()

	f.send(t, `{"toolCall":{"functionCalls":[{"id":"fc-1","name":"get_weather","args":{"city":"Paris","days":3,"metric":true}}]}}`)

	got := recvChunk(t, chunks)
	if got.Kind != ChunkToolCall || got.ToolName != "get_weather" || got.ToolID != "fc-1" {
		t.Fatalf("chunk = %+v, want tool_call get_weather", got)
	}
	if got.ToolArgs["city"] != "Paris" || got.ToolArgs["days"] != "3" || got.ToolArgs["metric"] != "true" {
		t.Fatalf("ToolArgs = %v, want stringified args", got.ToolArgs)
	}
}

func TestMalformedFrameReportsOnceAndStaysActive(t *testing.T) {
	f := newFakeRemote(t)
	c := testClient(f)
	errs := make(chan *SessionError, 4)
	chunks := make(chan ResponseChunk, 4)
	c.OnError(func(err *SessionError) { errs <- err })
	c.OnResponse(func(ch ResponseChunk) { chunks <- ch })
	mustConnect(t, c, f)
	defer c.Disconnect()

	f.send(t, `{not json`)

	select {
	case got := <-errs:
		if got.Code != "malformed_frame" {
			t.Fatalf("error code = %q, want malformed_frame", got.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("error callback never fired")
	}
	if c.State() != StateActive {
		t.Fatalf("State() = %q after malformed frame, want %q", c.State(), StateActive)
	}

	// The connection is still usable.
	f.send(t, `{"serverContent":{"modelTurn":{"parts":[{"text":"still here"}]}}}`)
	if got := recvChunk(t, chunks); got.Text != "still here" {
		t.Fatalf("chunk after malformed frame = %+v, want text delivery", got)
	}
	select {
	case extra := <-errs:
		t.Fatalf("unexpected second error callback: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRemoteCloseFiresErrorAndStateCallbacks(t *testing.T) {
	f := newFakeRemote(t)
	c := testClient(f)
	errs := make(chan *SessionError, 4)
	states := make(chan State, 8)
	c.OnError(func(err *SessionError) { errs <- err })
	c.OnStateChange(func(s State) { states <- s })
	mustConnect(t, c, f)

	f.dropConnection(t)

	select {
	case got := <-errs:
		if !strings.HasPrefix(got.Code, "remote_close_") {
			t.Fatalf("error code = %q, want remote_close_*", got.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("error callback never fired after remote close")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == StateDisconnected {
				return
			}
		case <-deadline:
			t.Fatalf("never observed %q state", StateDisconnected)
		}
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newFakeRemote(t)
	c := testClient(f)
	errs := make(chan *SessionError, 4)
	c.OnError(func(err *SessionError) { errs <- err })
	mustConnect(t, c, f)

	c.Disconnect()
	c.Disconnect()

	if c.State() != StateDisconnected {
		t.Fatalf("State() = %q, want %q", c.State(), StateDisconnected)
	}
	if c.SessionID() != "" {
		t.Fatalf("SessionID() = %q after disconnect, want empty", c.SessionID())
	}
	select {
	case err := <-errs:
		t.Fatalf("unexpected error callback on local disconnect: %+v", err)
	case <-time.After(150 * time.Millisecond):
	}
}

func recvChunk(t *testing.T, ch <-chan ResponseChunk) ResponseChunk {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for response chunk")
		return ResponseChunk{}
	}
}
