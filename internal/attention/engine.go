package attention

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ariadne-ai/aria/internal/observability"
	"github.com/ariadne-ai/aria/internal/store"
)

// Config carries the tunables of the aggregation pass. Boosts and the
// surfacing threshold are configuration, not algorithmic constants.
type Config struct {
	Interval  time.Duration
	MaxItems  int
	Threshold float64
	Boosts    map[ItemType]float64
}

type snoozeRecord struct {
	item  Item
	until time.Time
}

// Engine polls its sources, scores and merges their candidates, and
// maintains the published top-N list. The list is replaced wholesale on
// every refresh; observers see either the old or the new list.
type Engine struct {
	cfg     Config
	sources []Source
	st      store.Store
	metrics *observability.Metrics

	mu        sync.RWMutex
	published []Item
	dismissed map[string]struct{}
	snoozed   map[string]snoozeRecord

	cancel context.CancelFunc
	now    func() time.Time
}

func NewEngine(cfg Config, st store.Store, metrics *observability.Metrics, sources ...Source) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 5
	}
	return &Engine{
		cfg:       cfg,
		sources:   sources,
		st:        st,
		metrics:   metrics,
		dismissed: make(map[string]struct{}),
		snoozed:   make(map[string]snoozeRecord),
		now:       time.Now,
	}
}

// Start performs an immediate refresh, then refreshes on the configured
// interval until Stop.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		cancel()
		return
	}
	e.cancel = cancel
	e.mu.Unlock()

	e.Refresh(runCtx)

	ticker := time.NewTicker(e.cfg.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				e.Refresh(runCtx)
			}
		}
	}()
}

// Stop cancels the recurring timer. An in-flight refresh is not
// interrupted; it finishes and publishes its result.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Items returns a copy of the published list.
func (e *Engine) Items() []Item {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Item, len(e.published))
	copy(out, e.published)
	return out
}

// Refresh queries every source, applies type boosts, filters by the
// urgency threshold, and atomically replaces the published list with the
// top MaxItems. One source failing or panicking never blocks the others.
func (e *Engine) Refresh(ctx context.Context) {
	started := e.now()

	collected := make([][]Item, len(e.sources))
	var wg sync.WaitGroup
	for i, src := range e.sources {
		wg.Add(1)
		go func(idx int, s Source) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("attention: source %s panicked: %v", s.Kind(), r)
					if e.metrics != nil {
						e.metrics.SourceErrors.WithLabelValues(string(s.Kind())).Inc()
					}
				}
			}()
			collected[idx] = s.Items(ctx)
		}(i, src)
	}
	wg.Wait()

	now := e.now()

	e.mu.Lock()
	e.expireSnoozesLocked(now)

	var fresh []Item
	for _, items := range collected {
		for _, item := range items {
			if _, gone := e.dismissed[item.ID]; gone {
				continue
			}
			if rec, ok := e.snoozed[item.ID]; ok && now.Before(rec.until) {
				continue
			}
			if !item.ExpiresAt.IsZero() && now.After(item.ExpiresAt) {
				continue
			}
			item.Urgency = clampUrgency(item.Urgency + e.cfg.Boosts[item.Type])
			if item.Urgency < e.cfg.Threshold {
				continue
			}
			fresh = append(fresh, item)
		}
	}

	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Urgency > fresh[j].Urgency })
	if len(fresh) > e.cfg.MaxItems {
		fresh = fresh[:e.cfg.MaxItems]
	}
	e.published = fresh
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.AttentionPublished.Set(float64(len(fresh)))
		e.metrics.ObserveAttentionRefresh(e.now().Sub(started))
	}
}

// Dismiss removes the item immediately and keeps it out of subsequent
// refreshes. The dismissal record is persisted best-effort.
func (e *Engine) Dismiss(id string) {
	e.mu.Lock()
	e.dismissed[id] = struct{}{}
	e.removeLocked(id)
	e.mu.Unlock()

	e.persist("attention_dismissal", id, map[string]any{"dismissed_at": e.now().UTC()})
}

// Snooze removes the item immediately and schedules its reappearance.
// The snooze is a timed exclusion plus a deferred re-insertion of the
// saved copy; if the source still emits the item afterwards, the next
// refresh keeps it live.
func (e *Engine) Snooze(id string, d time.Duration) {
	if d <= 0 {
		d = time.Hour
	}

	e.mu.Lock()
	var saved Item
	for _, item := range e.published {
		if item.ID == id {
			saved = item
			break
		}
	}
	e.snoozed[id] = snoozeRecord{item: saved, until: e.now().Add(d)}
	e.removeLocked(id)
	e.mu.Unlock()

	e.persist("attention_snooze", id, map[string]any{"until": e.now().Add(d).UTC()})

	time.AfterFunc(d, func() { e.reinsert(id) })
}

func (e *Engine) reinsert(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.snoozed[id]
	delete(e.snoozed, id)
	if !ok || rec.item.ID == "" {
		return
	}
	if _, gone := e.dismissed[id]; gone {
		return
	}
	if rec.item.Urgency < e.cfg.Threshold {
		return
	}
	for _, item := range e.published {
		if item.ID == id {
			return
		}
	}

	next := append(append([]Item(nil), e.published...), rec.item)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Urgency > next[j].Urgency })
	if len(next) > e.cfg.MaxItems {
		next = next[:e.cfg.MaxItems]
	}
	e.published = next
}

func (e *Engine) expireSnoozesLocked(now time.Time) {
	for id, rec := range e.snoozed {
		if !now.Before(rec.until) {
			delete(e.snoozed, id)
		}
	}
}

func (e *Engine) removeLocked(id string) {
	next := e.published[:0]
	for _, item := range e.published {
		if item.ID != id {
			next = append(next, item)
		}
	}
	e.published = next
}

func (e *Engine) persist(kind, id string, payload map[string]any) {
	if e.st == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.st.Put(ctx, store.Record{Kind: kind, ID: id, Payload: body}); err != nil {
		log.Printf("attention: persist %s %s failed: %v", kind, id, err)
	}
}
