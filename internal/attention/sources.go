package attention

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/ariadne-ai/aria/internal/store"
)

// signalRow is the stored shape of one domain signal, written by the
// external domain adapters and read back here.
type signalRow struct {
	ID        string    `json:"id"`
	Type      ItemType  `json:"type"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle,omitempty"`
	Urgency   float64   `json:"urgency"`
	SourceRef string    `json:"source_ref,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// storeSource surfaces recent signal rows of one domain as attention
// candidates. It honors the Source contract: failures yield an empty
// result, never an error.
type storeSource struct {
	kind        SourceKind
	defaultType ItemType
	st          store.Store
	lookback    time.Duration
	now         func() time.Time
}

func newStoreSource(kind SourceKind, defaultType ItemType, st store.Store, lookback time.Duration) *storeSource {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &storeSource{kind: kind, defaultType: defaultType, st: st, lookback: lookback, now: time.Now}
}

func (s *storeSource) Kind() SourceKind { return s.kind }

func (s *storeSource) Items(ctx context.Context) []Item {
	records, err := s.st.ModifiedSince(ctx, "signal:"+string(s.kind), s.now().Add(-s.lookback))
	if err != nil {
		log.Printf("attention: %s source query failed: %v", s.kind, err)
		return nil
	}

	items := make([]Item, 0, len(records))
	for _, rec := range records {
		var row signalRow
		if err := json.Unmarshal(rec.Payload, &row); err != nil {
			continue
		}
		if row.ID == "" {
			row.ID = rec.ID
		}
		if row.Type == "" {
			row.Type = s.defaultType
		}
		item := NewItem(row.ID, row.Type, row.Title, row.Urgency, s.kind)
		item.Subtitle = row.Subtitle
		item.SourceRef = row.SourceRef
		item.CreatedAt = rec.UpdatedAt
		item.ExpiresAt = row.ExpiresAt
		items = append(items, item)
	}
	return items
}

// NewMailSource surfaces emails awaiting a reply.
func NewMailSource(st store.Store, lookback time.Duration) Source {
	return newStoreSource(SourceMail, ItemEmailFollowup, st, lookback)
}

// NewCalendarSource surfaces imminent events and reminders.
func NewCalendarSource(st store.Store, lookback time.Duration) Source {
	return newStoreSource(SourceCalendar, ItemCalendarReminder, st, lookback)
}

// NewFinanceSource surfaces due payments and balance alerts.
func NewFinanceSource(st store.Store, lookback time.Duration) Source {
	return newStoreSource(SourceFinance, ItemPaymentDue, st, lookback)
}

// NewShoppingSource surfaces order and delivery updates.
func NewShoppingSource(st store.Store, lookback time.Duration) Source {
	return newStoreSource(SourceShopping, ItemDeliveryUpdate, st, lookback)
}
