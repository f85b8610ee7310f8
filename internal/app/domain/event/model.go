// Package event defines the canonical event records persisted by the dashboard.
package event

import (
	"bytes"
	"encoding/json"
	"time"
)

// Category classifies events for filtering and subscription scoping.
type Category string

const (
	CategoryChannel Category = "channel"
	CategoryInvoice Category = "invoice"
	CategoryPayment Category = "payment"
	CategoryPeer    Category = "peer"
	CategoryForward Category = "forward"
	CategoryAll     Category = "all"
)

// Severity grades how urgently an event should be surfaced to the user.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a persisted canonical event. It is immutable once created.
type Event struct {
	ID          string
	AccountID   string
	UserID      string
	NodeID      string
	NodeAlias   string
	Category    Category
	Severity    Severity
	Title       string
	Description string
	Data        string
	Timestamp   time.Time
	CreatedAt   time.Time
}

// CreateEvent carries everything needed to persist a new event.
type CreateEvent struct {
	ID          string
	AccountID   string
	UserID      string
	NodeID      string
	NodeAlias   string
	Category    Category
	Severity    Severity
	Title       string
	Description string
	Data        string
	Timestamp   time.Time
}

// Response is an event returned to callers with the payload re-parsed from
// its stored JSON form.
type Response struct {
	ID          string
	AccountID   string
	UserID      string
	NodeID      string
	NodeAlias   string
	Category    Category
	Severity    Severity
	Title       string
	Description string
	Data        map[string]any
	Timestamp   time.Time
	CreatedAt   time.Time
}

// Filters narrows event queries. Nil fields are ignored.
type Filters struct {
	Category *Category
	Severity *Severity
	NodeID   *string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// Payload is an insertion-ordered mapping of payload keys to values. JSON
// marshalling preserves the order keys were set in.
type Payload struct {
	keys   []string
	values map[string]any
}

// NewPayload creates an empty payload.
func NewPayload() *Payload {
	return &Payload{values: make(map[string]any)}
}

// Set adds or replaces a payload field, keeping first-set key order.
func (p *Payload) Set(key string, value any) *Payload {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// Get returns the value stored under key.
func (p *Payload) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Len returns the number of payload fields.
func (p *Payload) Len() int { return len(p.keys) }

// Keys returns the payload keys in insertion order.
func (p *Payload) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// MarshalJSON encodes the payload as a JSON object in insertion order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(p.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
