package convo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariadne-ai/aria/internal/embed"
	"github.com/ariadne-ai/aria/internal/intent"
	"github.com/ariadne-ai/aria/internal/live"
	"github.com/ariadne-ai/aria/internal/observability"
	"github.com/ariadne-ai/aria/internal/policy"
	"github.com/ariadne-ai/aria/internal/respcache"
	"github.com/ariadne-ai/aria/internal/store"
)

const (
	// localConfidenceFloor gates serving a cached response instead of
	// waiting for the remote model.
	localConfidenceFloor = 0.9
	// cacheStoreFloor gates warming the cache from a completed remote turn.
	cacheStoreFloor = 0.7

	turnSaveTimeout = 2 * time.Second
)

// LiveSession is the remote-model surface the orchestrator drives. It is
// satisfied by *live.Client.
type LiveSession interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() live.State
	SendText(text string) error
	StreamAudio(pcm []byte) error
	EndAudioStream() error
	InjectContext(summary string) error
	OnTranscript(fn func(text string))
	OnResponse(fn func(chunk live.ResponseChunk))
	OnAudio(fn func(pcm []byte))
	OnError(fn func(err *live.SessionError))
	OnStateChange(fn func(s live.State))
}

// ConversationContext is the ambient situation pushed to the model between
// turns so answers stay grounded without the user restating it.
type ConversationContext struct {
	Time           time.Time
	Location       string
	UpcomingEvents []string
	UnreadMail     int
	PendingTasks   []string
}

func (c ConversationContext) summary() string {
	var b strings.Builder
	if !c.Time.IsZero() {
		fmt.Fprintf(&b, "Current time: %s.\n", c.Time.Format("Monday, Jan 2 15:04"))
	}
	if strings.TrimSpace(c.Location) != "" {
		fmt.Fprintf(&b, "User location: %s.\n", c.Location)
	}
	if len(c.UpcomingEvents) > 0 {
		fmt.Fprintf(&b, "Upcoming events: %s.\n", strings.Join(c.UpcomingEvents, "; "))
	}
	if c.UnreadMail > 0 {
		fmt.Fprintf(&b, "Unread emails: %d.\n", c.UnreadMail)
	}
	if len(c.PendingTasks) > 0 {
		fmt.Fprintf(&b, "Pending tasks: %s.\n", strings.Join(c.PendingTasks, "; "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// turnState tracks one in-flight user turn from input to model turn end.
type turnState struct {
	id              string
	userText        string
	started         time.Time
	buf             strings.Builder
	servedFromCache bool
	firstChunkSeen  bool
	result          intent.Result
}

// Orchestrator races the local intent path against the remote model for
// every text turn and owns the write-back of completed turns. Exactly one
// orchestrator drives one live session.
type Orchestrator struct {
	live       LiveSession
	classifier *intent.Classifier
	responses  *respcache.Cache
	st         store.Store
	metrics    *observability.Metrics
	embedder   embed.Embedder
	embedBatch int

	cbMu         sync.RWMutex
	onText       func(turnID, delta string)
	onAudio      func(pcm []byte)
	onTranscript func(text string)
	onTurnEnd    func(turnID, reason string)
	onToolCall   func(name string, args map[string]string)
	onError      func(err *live.SessionError)
	onState      func(s live.State)

	mu             sync.Mutex
	turn           *turnState
	lastTranscript string

	now func() time.Time
}

// Options carries the optional collaborators. Everything in it may be nil.
type Options struct {
	Store      store.Store
	Metrics    *observability.Metrics
	Embedder   embed.Embedder
	EmbedBatch int
}

func NewOrchestrator(session LiveSession, classifier *intent.Classifier, responses *respcache.Cache, opts Options) *Orchestrator {
	if opts.EmbedBatch <= 0 {
		opts.EmbedBatch = 4
	}
	o := &Orchestrator{
		live:       session,
		classifier: classifier,
		responses:  responses,
		st:         opts.Store,
		metrics:    opts.Metrics,
		embedder:   opts.Embedder,
		embedBatch: opts.EmbedBatch,
		now:        time.Now,
	}

	session.OnResponse(o.handleChunk)
	session.OnTranscript(o.handleTranscript)
	session.OnAudio(func(pcm []byte) { o.emitAudio(pcm) })
	session.OnError(func(err *live.SessionError) { o.emitError(err) })
	session.OnStateChange(o.handleStateChange)

	return o
}

// Callback registration, one replaceable callback per event kind.

func (o *Orchestrator) OnAssistantText(fn func(turnID, delta string)) {
	o.cbMu.Lock()
	o.onText = fn
	o.cbMu.Unlock()
}

func (o *Orchestrator) OnAssistantAudio(fn func(pcm []byte)) {
	o.cbMu.Lock()
	o.onAudio = fn
	o.cbMu.Unlock()
}

func (o *Orchestrator) OnTranscript(fn func(text string)) {
	o.cbMu.Lock()
	o.onTranscript = fn
	o.cbMu.Unlock()
}

func (o *Orchestrator) OnTurnEnd(fn func(turnID, reason string)) {
	o.cbMu.Lock()
	o.onTurnEnd = fn
	o.cbMu.Unlock()
}

func (o *Orchestrator) OnToolCall(fn func(name string, args map[string]string)) {
	o.cbMu.Lock()
	o.onToolCall = fn
	o.cbMu.Unlock()
}

func (o *Orchestrator) OnError(fn func(err *live.SessionError)) {
	o.cbMu.Lock()
	o.onError = fn
	o.cbMu.Unlock()
}

func (o *Orchestrator) OnStateChange(fn func(s live.State)) {
	o.cbMu.Lock()
	o.onState = fn
	o.cbMu.Unlock()
}

// Connect brings up the live session.
func (o *Orchestrator) Connect(ctx context.Context) error {
	err := o.live.Connect(ctx)
	if o.metrics != nil {
		if err != nil {
			o.metrics.SessionEvents.WithLabelValues("connect_failed").Inc()
		} else {
			o.metrics.SessionEvents.WithLabelValues("connected").Inc()
		}
	}
	return err
}

// Disconnect tears down the live session.
func (o *Orchestrator) Disconnect() {
	o.live.Disconnect()
	if o.metrics != nil {
		o.metrics.SessionEvents.WithLabelValues("disconnected").Inc()
	}
}

// State reports the live session state.
func (o *Orchestrator) State() live.State {
	return o.live.State()
}

// ProcessText handles one user text turn. The text always goes to the
// remote model; in parallel it is classified locally, and a confident
// match with a fresh cached response is served immediately. The remote
// answer is then used only to re-warm the cache, never re-delivered.
func (o *Orchestrator) ProcessText(ctx context.Context, text string) error {
	turn := &turnState{
		id:       uuid.NewString(),
		userText: text,
		started:  o.now(),
	}
	o.mu.Lock()
	o.turn = turn
	o.mu.Unlock()

	sendErr := make(chan error, 1)
	go func() { sendErr <- o.live.SendText(text) }()

	result := o.classifier.Classify(text)
	o.mu.Lock()
	turn.result = result
	o.mu.Unlock()

	if result.Confidence > localConfidenceFloor {
		if cached, ok := o.responses.Get(result.Intent); ok {
			o.mu.Lock()
			turn.servedFromCache = true
			o.mu.Unlock()

			if o.metrics != nil {
				o.metrics.ResponseCache.WithLabelValues("hit").Inc()
				o.metrics.RaceOutcomes.WithLabelValues("local").Inc()
				o.metrics.ObserveTurnLatency(o.now().Sub(turn.started))
			}
			o.emitText(turn.id, cached)
			o.emitTurnEnd(turn.id, "cache")

			// The remote turn keeps running for cache warming. A send
			// failure is not the caller's problem: the answer is out.
			if err := <-sendErr; err != nil {
				log.Printf("convo: background remote send failed: %v", err)
				o.abandonTurn(turn)
			}
			return nil
		}
		if o.metrics != nil {
			o.metrics.ResponseCache.WithLabelValues("miss").Inc()
		}
	}

	if o.metrics != nil {
		o.metrics.RaceOutcomes.WithLabelValues("remote").Inc()
	}
	if err := <-sendErr; err != nil {
		o.abandonTurn(turn)
		return err
	}
	return nil
}

// ProcessVoice streams one PCM fragment of the in-progress user turn.
func (o *Orchestrator) ProcessVoice(pcm []byte) error {
	return o.live.StreamAudio(pcm)
}

// EndVoiceInput closes the audio turn. The user text arrives later via
// the input transcript, so the turn starts empty.
func (o *Orchestrator) EndVoiceInput() error {
	turn := &turnState{id: uuid.NewString(), started: o.now()}
	o.mu.Lock()
	o.turn = turn
	o.lastTranscript = ""
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RaceOutcomes.WithLabelValues("remote").Inc()
	}
	if err := o.live.EndAudioStream(); err != nil {
		o.abandonTurn(turn)
		return err
	}
	return nil
}

// InjectContext pushes an ambient context snapshot into the session.
func (o *Orchestrator) InjectContext(c ConversationContext) error {
	summary := c.summary()
	if summary == "" {
		return nil
	}
	return o.live.InjectContext(summary)
}

func (o *Orchestrator) handleTranscript(text string) {
	o.mu.Lock()
	o.lastTranscript = text
	if o.turn != nil && o.turn.userText == "" {
		o.turn.userText = text
	}
	o.mu.Unlock()

	o.cbMu.RLock()
	fn := o.onTranscript
	o.cbMu.RUnlock()
	if fn != nil {
		fn(text)
	}
}

func (o *Orchestrator) handleStateChange(s live.State) {
	if o.metrics != nil {
		if s == live.StateActive {
			o.metrics.SessionConnected.Set(1)
		} else {
			o.metrics.SessionConnected.Set(0)
		}
	}
	o.cbMu.RLock()
	fn := o.onState
	o.cbMu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

func (o *Orchestrator) handleChunk(chunk live.ResponseChunk) {
	if o.metrics != nil {
		o.metrics.LiveChunks.WithLabelValues(string(chunk.Kind)).Inc()
	}

	switch chunk.Kind {
	case live.ChunkText:
		o.mu.Lock()
		turn := o.turn
		var turnID string
		suppress := false
		if turn != nil {
			turn.buf.WriteString(chunk.Text)
			turnID = turn.id
			suppress = turn.servedFromCache
			if !suppress && !turn.firstChunkSeen {
				turn.firstChunkSeen = true
				if o.metrics != nil {
					o.metrics.ObserveTurnLatency(o.now().Sub(turn.started))
				}
			}
		}
		o.mu.Unlock()
		if !suppress {
			o.emitText(turnID, chunk.Text)
		}

	case live.ChunkToolCall:
		o.cbMu.RLock()
		fn := o.onToolCall
		o.cbMu.RUnlock()
		if fn != nil {
			fn(chunk.ToolName, chunk.ToolArgs)
		}

	case live.ChunkTurnComplete:
		o.completeTurn()
	}
}

// completeTurn closes the current turn: the finished text re-warms the
// response cache when the turn's intent is clear enough, and the exchange
// is written back for memory.
func (o *Orchestrator) completeTurn() {
	o.mu.Lock()
	turn := o.turn
	o.turn = nil
	o.mu.Unlock()

	if turn == nil {
		return
	}
	if !turn.servedFromCache {
		o.emitTurnEnd(turn.id, "complete")
	}

	full := turn.buf.String()
	if strings.TrimSpace(turn.userText) != "" && strings.TrimSpace(full) != "" {
		result := o.classifier.Classify(turn.userText)
		if result.Confidence > cacheStoreFloor && result.Intent != intent.IntentUnknown {
			o.responses.Put(result.Intent, full)
			if o.metrics != nil {
				o.metrics.ResponseCache.WithLabelValues("store").Inc()
			}
		}
		turn.result = result
	}

	go o.persistTurn(turn, full)
}

// abandonTurn drops turn state after a failed send so a later unrelated
// model turn cannot complete against it.
func (o *Orchestrator) abandonTurn(turn *turnState) {
	o.mu.Lock()
	if o.turn == turn {
		o.turn = nil
	}
	o.mu.Unlock()
}

type turnRecord struct {
	TurnID     string        `json:"turn_id"`
	UserText   string        `json:"user_text"`
	Assistant  string        `json:"assistant_text"`
	Intent     intent.Intent `json:"intent"`
	Confidence float64       `json:"confidence"`
	FromCache  bool          `json:"from_cache"`
	Redacted   bool          `json:"redacted"`
	At         time.Time     `json:"at"`

	UserVector      []float32 `json:"user_vector,omitempty"`
	AssistantVector []float32 `json:"assistant_vector,omitempty"`
}

// persistTurn writes the redacted exchange back to storage, best-effort.
func (o *Orchestrator) persistTurn(turn *turnState, assistantText string) {
	if o.st == nil {
		return
	}
	if strings.TrimSpace(turn.userText) == "" && strings.TrimSpace(assistantText) == "" {
		return
	}

	userRedacted, uChanged := policy.RedactPII(turn.userText)
	assistantRedacted, aChanged := policy.RedactPII(assistantText)

	rec := turnRecord{
		TurnID:     turn.id,
		UserText:   userRedacted,
		Assistant:  assistantRedacted,
		Intent:     turn.result.Intent,
		Confidence: turn.result.Confidence,
		FromCache:  turn.servedFromCache,
		Redacted:   uChanged || aChanged,
		At:         o.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), turnSaveTimeout)
	defer cancel()

	if o.embedder != nil {
		vectors, err := embed.BatchEmbed(ctx, o.embedder, []string{userRedacted, assistantRedacted}, o.embedBatch)
		if err != nil {
			log.Printf("convo: embed turn %s failed: %v", turn.id, err)
		} else {
			rec.UserVector = vectors[0]
			rec.AssistantVector = vectors[1]
		}
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := o.st.Put(ctx, store.Record{Kind: "conversation_turn", ID: turn.id, Payload: payload}); err != nil {
		log.Printf("convo: persist turn %s failed: %v", turn.id, err)
	}
}

func (o *Orchestrator) emitText(turnID, delta string) {
	o.cbMu.RLock()
	fn := o.onText
	o.cbMu.RUnlock()
	if fn != nil {
		fn(turnID, delta)
	}
}

func (o *Orchestrator) emitAudio(pcm []byte) {
	o.cbMu.RLock()
	fn := o.onAudio
	o.cbMu.RUnlock()
	if fn != nil {
		fn(pcm)
	}
}

func (o *Orchestrator) emitTurnEnd(turnID, reason string) {
	o.cbMu.RLock()
	fn := o.onTurnEnd
	o.cbMu.RUnlock()
	if fn != nil {
		fn(turnID, reason)
	}
}

func (o *Orchestrator) emitError(err *live.SessionError) {
	if o.metrics != nil {
		o.metrics.SessionEvents.WithLabelValues("session_error").Inc()
	}
	o.cbMu.RLock()
	fn := o.onError
	o.cbMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
