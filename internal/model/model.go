// Package model defines the shared domain types for the triage pipeline.
package model

import "time"

// Role identifies the author side of a conversation message.
type Role string

const (
	// RoleOperator is a message sent by the agent operating the inbox.
	RoleOperator Role = "operator"
	// RoleCounterparty is a message sent by the contact on the other side.
	RoleCounterparty Role = "counterparty"
)

// Message is one message inside a conversation as read from the CRM UI.
type Message struct {
	Author Role   `json:"author" yaml:"author"`
	Text   string `json:"text" yaml:"text"`
	// TimeLabel is the human-readable stamp the UI shows next to the
	// message, e.g. "Hace 20 minutos" or "09/12/2025 a las 06:42 PM".
	// May be empty when the UI hides the timestamp.
	TimeLabel string `json:"time,omitempty" yaml:"time,omitempty"`
	// Links are the raw hrefs embedded in the message body.
	Links []string `json:"links,omitempty" yaml:"links,omitempty"`
}

// Conversation is the readable state of one inbox conversation. It is
// re-derived on every pipeline visit; nothing here is persisted.
type Conversation struct {
	ID        string    `json:"id" yaml:"id"`
	PanelName string    `json:"panel,omitempty" yaml:"panel,omitempty"`
	Messages  []Message `json:"messages" yaml:"messages"`
}

// TimeInfo is the parsed form of a message time label. A label can carry
// a relative age, an absolute stamp, both, or neither.
type TimeInfo struct {
	Raw         string
	Absolute    time.Time
	HasAbsolute bool
	Relative    time.Duration
	HasRelative bool
}

// Parseable reports whether the label produced any usable date context.
func (t TimeInfo) Parseable() bool {
	return t.HasAbsolute || t.HasRelative
}

// ReferralEvent is one inbound referral link observed in a conversation,
// de-duplicated by URL within a single extraction pass.
type ReferralEvent struct {
	URL      string
	Observed TimeInfo
}

// Panel is a directory entry: one panel id with its known name aliases.
type Panel struct {
	ID    int      `json:"id" yaml:"id"`
	Names []string `json:"names" yaml:"names"`
}

// Resolution is the outcome of resolving a raw panel name.
type Resolution struct {
	ID   int
	Name string
}

// QueueItem is one URL waiting for a human campaign-letter decision.
type QueueItem struct {
	URL        string    `json:"url"`
	PanelName  string    `json:"panel"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
