package attention

import (
	"context"
	"time"
)

// ItemType categorizes attention candidates and selects the urgency boost.
type ItemType string

const (
	ItemMissedCall       ItemType = "missed_call"
	ItemPaymentDue       ItemType = "payment_due"
	ItemCalendarReminder ItemType = "calendar_reminder"
	ItemEmailFollowup    ItemType = "email_followup"
	ItemDeliveryUpdate   ItemType = "delivery_update"
	ItemGeneric          ItemType = "generic"
)

// SourceKind names the domain a candidate came from.
type SourceKind string

const (
	SourceMail     SourceKind = "mail"
	SourceCalendar SourceKind = "calendar"
	SourceFinance  SourceKind = "finance"
	SourceShopping SourceKind = "shopping"
)

// ActionType discriminates QuickAction variants.
type ActionType string

const (
	ActionCall     ActionType = "call"
	ActionReply    ActionType = "reply"
	ActionComplete ActionType = "complete"
	ActionPay      ActionType = "pay"
	ActionOpen     ActionType = "open"
	ActionDismiss  ActionType = "dismiss"
	ActionSnooze   ActionType = "snooze"
	ActionCustom   ActionType = "custom"
)

// QuickAction is an inert affordance interpreted by the UI layer.
type QuickAction struct {
	Title     string        `json:"title"`
	Icon      string        `json:"icon"`
	Type      ActionType    `json:"type"`
	SnoozeFor time.Duration `json:"snooze_for,omitempty"`
}

// Item is one candidate requiring user awareness. Urgency is clamped to
// [0,1] at construction and after every boost.
type Item struct {
	ID        string        `json:"id"`
	Type      ItemType      `json:"type"`
	Title     string        `json:"title"`
	Subtitle  string        `json:"subtitle,omitempty"`
	Urgency   float64       `json:"urgency"`
	Source    SourceKind    `json:"source"`
	SourceRef string        `json:"source_ref,omitempty"`
	Actions   []QuickAction `json:"actions,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at,omitempty"`
}

// NewItem builds an Item with clamped urgency and a creation timestamp.
func NewItem(id string, itemType ItemType, title string, urgency float64, source SourceKind) Item {
	return Item{
		ID:        id,
		Type:      itemType,
		Title:     title,
		Urgency:   clampUrgency(urgency),
		Source:    source,
		Actions:   defaultActions(itemType),
		CreatedAt: time.Now().UTC(),
	}
}

func clampUrgency(u float64) float64 {
	if u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}

func defaultActions(itemType ItemType) []QuickAction {
	base := []QuickAction{
		{Title: "Dismiss", Icon: "xmark", Type: ActionDismiss},
		{Title: "Snooze 1h", Icon: "clock", Type: ActionSnooze, SnoozeFor: time.Hour},
	}
	switch itemType {
	case ItemMissedCall:
		return append([]QuickAction{{Title: "Call back", Icon: "phone", Type: ActionCall}}, base...)
	case ItemPaymentDue:
		return append([]QuickAction{{Title: "Pay", Icon: "creditcard", Type: ActionPay}}, base...)
	case ItemCalendarReminder:
		return append([]QuickAction{{Title: "Open", Icon: "calendar", Type: ActionOpen}, {Title: "Done", Icon: "checkmark", Type: ActionComplete}}, base...)
	case ItemEmailFollowup:
		return append([]QuickAction{{Title: "Reply", Icon: "envelope", Type: ActionReply}}, base...)
	case ItemDeliveryUpdate:
		return append([]QuickAction{{Title: "Track", Icon: "shippingbox", Type: ActionOpen}}, base...)
	default:
		return base
	}
}

// Source supplies the current attention candidates for one domain. A
// failing source returns an empty slice; it never returns an error.
type Source interface {
	Kind() SourceKind
	Items(ctx context.Context) []Item
}
