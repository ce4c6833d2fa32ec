package domain

import "time"

type EventKind string

const (
	EventApproval EventKind = "approval"
	EventSync     EventKind = "sync"
)

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// ModerationEvent is one entry of the dashboard's own action journal.
type ModerationEvent struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	ReviewID  *int64    `json:"review_id,omitempty"`
	ListingID *int64    `json:"listing_id,omitempty"`
	Approved  *bool     `json:"approved,omitempty"`
	Added     *int      `json:"added,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
