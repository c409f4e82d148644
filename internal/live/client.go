package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ariadne-ai/aria/internal/reliability"
)

const bidiPath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const pcmMimeType = "audio/pcm;rate=16000"

// ChunkKind discriminates ResponseChunk variants.
type ChunkKind string

const (
	ChunkText         ChunkKind = "text"
	ChunkToolCall     ChunkKind = "tool_call"
	ChunkTurnComplete ChunkKind = "turn_complete"
)

// ResponseChunk is one typed event decoded from a model turn. Audio
// fragments are delivered through the dedicated audio callback instead.
type ResponseChunk struct {
	Kind     ChunkKind
	Text     string
	ToolID   string
	ToolName string
	ToolArgs map[string]string
}

// Config holds the session endpoint and persona settings.
type Config struct {
	APIKey             string
	BaseURL            string
	Model              string
	Voice              string
	SystemInstruction  string
	ResponseModalities []string
	ConnectTimeout     time.Duration
	ConnectPoll        time.Duration
}

// Client owns at most one duplex connection to the remote conversational
// model and translates its wire protocol into typed events. It never
// reconnects on its own; after a transport failure a fresh Connect is
// required.
type Client struct {
	cfg Config

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	sessionID   string
	pendingTurn bool

	writeMu sync.Mutex

	cbMu         sync.RWMutex
	onTranscript func(string)
	onResponse   func(ResponseChunk)
	onAudio      func([]byte)
	onError      func(*SessionError)
	onState      func(State)

	// One queue and one drain goroutine per callback kind: frames stay
	// ordered within a kind, kinds are unordered relative to each other,
	// and callbacks never run on the read loop.
	transcriptCh chan string
	responseCh   chan ResponseChunk
	audioCh      chan []byte
	errorCh      chan *SessionError
	stateCh      chan State
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "wss://generativelanguage.googleapis.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "models/gemini-2.0-flash-live-001"
	}
	if len(cfg.ResponseModalities) == 0 {
		cfg.ResponseModalities = []string{"TEXT"}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if cfg.ConnectPoll <= 0 {
		cfg.ConnectPoll = 100 * time.Millisecond
	}

	c := &Client{
		cfg:          cfg,
		state:        StateDisconnected,
		transcriptCh: make(chan string, 256),
		responseCh:   make(chan ResponseChunk, 256),
		audioCh:      make(chan []byte, 256),
		errorCh:      make(chan *SessionError, 64),
		stateCh:      make(chan State, 16),
	}
	go c.drainTranscripts()
	go c.drainResponses()
	go c.drainAudio()
	go c.drainErrors()
	go c.drainStates()
	return c
}

// Callback registration. Each kind holds a single replaceable callback.

func (c *Client) OnTranscript(fn func(text string)) {
	c.cbMu.Lock()
	c.onTranscript = fn
	c.cbMu.Unlock()
}

func (c *Client) OnResponse(fn func(chunk ResponseChunk)) {
	c.cbMu.Lock()
	c.onResponse = fn
	c.cbMu.Unlock()
}

func (c *Client) OnAudio(fn func(pcm []byte)) {
	c.cbMu.Lock()
	c.onAudio = fn
	c.cbMu.Unlock()
}

func (c *Client) OnError(fn func(err *SessionError)) {
	c.cbMu.Lock()
	c.onError = fn
	c.cbMu.Unlock()
}

func (c *Client) OnStateChange(fn func(s State)) {
	c.cbMu.Lock()
	c.onState = fn
	c.cbMu.Unlock()
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID is the identifier assigned by the remote side once the
// handshake completes; empty until then.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// PendingTurn reports whether a user turn has been sent and its model
// turn has not completed yet.
func (c *Client) PendingTurn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingTurn
}

// Connect opens the transport, waits for it to open (polled until the
// configured timeout), then sends the one-time setup frame. The
// credential is checked before any transport activity.
func (c *Client) Connect(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return ErrMissingCredential
	}

	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		c.mu.Unlock()
		return ErrConnectInProgress
	case StateActive:
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.stateCh <- StateConnecting

	target, err := c.sessionURL()
	if err != nil {
		c.setDisconnected()
		return err
	}

	dialCtx, cancel := context.WithCancel(ctx)
	type dialResult struct {
		conn *websocket.Conn
		err  error
	}
	resCh := make(chan dialResult, 1)
	go func() {
		conn, _, dialErr := websocket.DefaultDialer.DialContext(dialCtx, target, nil)
		resCh <- dialResult{conn: conn, err: dialErr}
	}()

	abandonDial := func() {
		cancel()
		go func() {
			if res := <-resCh; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
	}

	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	poll := time.NewTicker(c.cfg.ConnectPoll)
	defer poll.Stop()

	var conn *websocket.Conn
openWait:
	for {
		select {
		case res := <-resCh:
			cancel()
			if res.err != nil {
				c.setDisconnected()
				return fmt.Errorf("live: dial: %w", res.err)
			}
			conn = res.conn
			break openWait
		case <-poll.C:
			if time.Now().After(deadline) {
				abandonDial()
				c.setDisconnected()
				return ErrConnectionTimeout
			}
		case <-ctx.Done():
			abandonDial()
			c.setDisconnected()
			return ctx.Err()
		}
	}

	if err := conn.WriteJSON(c.setupFrame()); err != nil {
		_ = conn.Close()
		c.setDisconnected()
		return fmt.Errorf("live: send setup: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.sessionID = ""
	c.pendingTurn = false
	c.state = StateActive
	c.mu.Unlock()
	c.stateCh <- StateActive

	go c.readLoop(conn)
	return nil
}

// Disconnect closes the transport unconditionally and clears the session
// identifier. Calling it on a disconnected client is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	wasDisconnected := c.state == StateDisconnected
	c.conn = nil
	c.sessionID = ""
	c.pendingTurn = false
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if !wasDisconnected {
		c.stateCh <- StateDisconnected
	}
}

// SendText sends a complete user text turn and marks it done in one call.
func (c *Client) SendText(text string) error {
	conn, err := c.activeConn()
	if err != nil {
		return err
	}
	frame := clientContentFrame{ClientContent: clientContent{
		Turns: []contentBlock{{
			Role:  "user",
			Parts: []part{{Text: text}},
		}},
		TurnComplete: true,
	}}
	c.mu.Lock()
	c.pendingTurn = true
	c.mu.Unlock()
	return c.writeJSON(conn, frame)
}

// StreamAudio appends raw PCM to the current user turn.
func (c *Client) StreamAudio(pcm []byte) error {
	conn, err := c.activeConn()
	if err != nil {
		return err
	}
	frame := realtimeInputFrame{RealtimeInput: realtimeInput{
		MediaChunks: []mediaChunk{{
			MimeType: pcmMimeType,
			Data:     base64.StdEncoding.EncodeToString(pcm),
		}},
	}}
	return c.writeJSON(conn, frame)
}

// EndAudioStream signals end-of-turn for an in-progress audio turn.
func (c *Client) EndAudioStream() error {
	conn, err := c.activeConn()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.pendingTurn = true
	c.mu.Unlock()
	return c.writeJSON(conn, clientContentFrame{ClientContent: clientContent{TurnComplete: true}})
}

// InjectContext delivers an out-of-band context update. It rides the
// tool-response side channel so it never appears as a spoken turn.
func (c *Client) InjectContext(summary string) error {
	conn, err := c.activeConn()
	if err != nil {
		return err
	}
	frame := toolResponseFrame{ToolResponse: toolResponse{
		FunctionResponses: []functionResponse{{
			Name:     "context_update",
			Response: map[string]any{"output": summary},
		}},
	}}
	return c.writeJSON(conn, frame)
}

func (c *Client) sessionURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + bidiPath)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEndpoint, c.cfg.BaseURL)
	}
	q := u.Query()
	q.Set("key", c.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) setupFrame() setupFrame {
	payload := setupPayload{
		Model: c.cfg.Model,
		GenerationConfig: generationConfig{
			ResponseModalities: c.cfg.ResponseModalities,
		},
	}
	if strings.TrimSpace(c.cfg.Voice) != "" {
		payload.GenerationConfig.SpeechConfig = &speechConfig{Voice: c.cfg.Voice}
	}
	if strings.TrimSpace(c.cfg.SystemInstruction) != "" {
		payload.SystemInstruction = &contentBlock{Parts: []part{{Text: c.cfg.SystemInstruction}}}
	}
	return setupFrame{Setup: payload}
}

func (c *Client) activeConn() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive || c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

func (c *Client) writeJSON(conn *websocket.Conn, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(payload)
}

func (c *Client) setDisconnected() {
	c.mu.Lock()
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()
	if changed {
		c.stateCh <- StateDisconnected
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleTransportError(conn, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleTransportError(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Client-initiated disconnect or superseded connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.sessionID = ""
	c.pendingTurn = false
	c.state = StateDisconnected
	c.mu.Unlock()

	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	c.errorCh <- &SessionError{
		Code:      "remote_close_" + strconv.Itoa(code),
		Detail:    err.Error(),
		Retryable: reliability.IsRetryableCloseCode(code),
	}
	c.stateCh <- StateDisconnected
}

// handleFrame decodes one inbound frame. Decode failures are reported and
// swallowed; they never terminate the connection.
func (c *Client) handleFrame(data []byte) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.errorCh <- &SessionError{Code: "malformed_frame", Detail: err.Error()}
		return
	}

	if frame.SetupComplete != nil {
		c.mu.Lock()
		c.sessionID = frame.SetupComplete.SessionID
		c.mu.Unlock()
	}

	if sc := frame.ServerContent; sc != nil {
		if sc.InputTranscript != "" {
			c.transcriptCh <- sc.InputTranscript
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.Text != "" {
					c.responseCh <- ResponseChunk{Kind: ChunkText, Text: p.Text}
				}
				if p.InlineData != nil {
					raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
					if err != nil {
						c.errorCh <- &SessionError{Code: "malformed_audio", Detail: err.Error()}
						continue
					}
					c.audioCh <- raw
				}
			}
		}
		if sc.TurnComplete {
			c.mu.Lock()
			c.pendingTurn = false
			c.mu.Unlock()
			c.responseCh <- ResponseChunk{Kind: ChunkTurnComplete}
		}
	}

	if tc := frame.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			c.responseCh <- ResponseChunk{
				Kind:     ChunkToolCall,
				ToolID:   fc.ID,
				ToolName: fc.Name,
				ToolArgs: stringifyArgs(fc.Args),
			}
		}
	}
}

func (c *Client) drainTranscripts() {
	for text := range c.transcriptCh {
		c.cbMu.RLock()
		fn := c.onTranscript
		c.cbMu.RUnlock()
		if fn != nil {
			fn(text)
		}
	}
}

func (c *Client) drainResponses() {
	for chunk := range c.responseCh {
		c.cbMu.RLock()
		fn := c.onResponse
		c.cbMu.RUnlock()
		if fn != nil {
			fn(chunk)
		}
	}
}

func (c *Client) drainAudio() {
	for pcm := range c.audioCh {
		c.cbMu.RLock()
		fn := c.onAudio
		c.cbMu.RUnlock()
		if fn != nil {
			fn(pcm)
		}
	}
}

func (c *Client) drainErrors() {
	for err := range c.errorCh {
		c.cbMu.RLock()
		fn := c.onError
		c.cbMu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

func (c *Client) drainStates() {
	for s := range c.stateCh {
		c.cbMu.RLock()
		fn := c.onState
		c.cbMu.RUnlock()
		if fn != nil {
			fn(s)
		}
	}
}

func stringifyArgs(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			if b, err := json.Marshal(v); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}
