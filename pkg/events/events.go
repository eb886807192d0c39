// Package events defines the lifecycle notifications emitted by the
// auction registry and the stream that fans them out.
package events

import (
	"github.com/google/uuid"

	"github.com/luxfi/dax/pkg/ids"
)

// Type labels an auction lifecycle event
type Type string

const (
	TypeEnabled  Type = "enabled"
	TypeDisabled Type = "disabled"
	TypeKicked   Type = "kicked"
	TypeTaken    Type = "taken"
	TypeSwept    Type = "swept"
)

// Event is implemented by every lifecycle notification
type Event interface {
	Kind() Type
	Auction() ids.ID
}

// BaseEvent carries the fields shared by every notification. Amounts
// on concrete events are decimal strings so JSON consumers never deal
// with 256-bit integers.
type BaseEvent struct {
	Type      Type   `json:"type"`
	EventID   string `json:"event_id"`
	AuctionID ids.ID `json:"auction_id"`
	Timestamp uint64 `json:"timestamp"`
}

// Kind returns the event type
func (e BaseEvent) Kind() Type { return e.Type }

// Auction returns the auction the event belongs to
func (e BaseEvent) Auction() ids.ID { return e.AuctionID }

// NewBase stamps a fresh event envelope
func NewBase(t Type, auctionID ids.ID, now uint64) BaseEvent {
	return BaseEvent{
		Type:      t,
		EventID:   uuid.NewString(),
		AuctionID: auctionID,
		Timestamp: now,
	}
}

// Enabled is emitted when a sell token is put up for auction
type Enabled struct {
	BaseEvent
	FromToken string `json:"from_token"`
	ToToken   string `json:"to_token"`
	Receiver  string `json:"receiver"`
}

// Disabled is emitted when a sell token's record is cleared
type Disabled struct {
	BaseEvent
	FromToken string `json:"from_token"`
}

// Kicked is emitted when a new price window opens
type Kicked struct {
	BaseEvent
	FromToken string `json:"from_token"`
	Available string `json:"available"`
}

// Taken is emitted after a partial or full fill settles
type Taken struct {
	BaseEvent
	FromToken   string `json:"from_token"`
	Taker       string `json:"taker"`
	AmountTaken string `json:"amount_taken"`
	AmountPaid  string `json:"amount_paid"`
	Remaining   string `json:"remaining"`
}

// Swept is emitted when stray balances are pushed to the receiver
type Swept struct {
	BaseEvent
	Token  string `json:"token"`
	Amount string `json:"amount"`
}
