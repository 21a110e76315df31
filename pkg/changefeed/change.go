package changefeed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Op names the kind of row mutation that produced a change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

const (
	ScopeAll           = "all"
	scopeAuctionKind   = "auction"
	scopeConsignerKind = "consigner"
	scopeDriverKind    = "driver"
)

// Change signals that something in a table moved. It never carries the row
// itself; receivers re-fetch the state they care about.
type Change struct {
	Table       string     `json:"table"`
	Op          Op         `json:"op"`
	AuctionID   *uuid.UUID `json:"auction_id,omitempty"`
	ConsignerID *uuid.UUID `json:"consigner_id,omitempty"`
	DriverID    *uuid.UUID `json:"driver_id,omitempty"`
	At          time.Time  `json:"at"`
}

// Scopes lists every subscription scope the change is relevant to.
func (c Change) Scopes() []string {
	scopes := make([]string, 0, 4)
	if c.AuctionID != nil {
		scopes = append(scopes, AuctionScope(*c.AuctionID))
	}
	if c.ConsignerID != nil {
		scopes = append(scopes, ConsignerScope(*c.ConsignerID))
	}
	if c.DriverID != nil {
		scopes = append(scopes, DriverScope(*c.DriverID))
	}
	return append(scopes, ScopeAll)
}

func AuctionScope(id uuid.UUID) string { return scopeAuctionKind + ":" + id.String() }
func ConsignerScope(id uuid.UUID) string { return scopeConsignerKind + ":" + id.String() }
func DriverScope(id uuid.UUID) string { return scopeDriverKind + ":" + id.String() }

// Scope is a parsed subscription key such as "auction:<id>".
type Scope struct {
	Kind string
	ID   uuid.UUID
}

// ParseScope validates a scope key supplied by a viewer.
func ParseScope(value string) (Scope, error) {
	value = strings.TrimSpace(value)
	if value == ScopeAll {
		return Scope{Kind: ScopeAll}, nil
	}
	kind, rawID, ok := strings.Cut(value, ":")
	if !ok {
		return Scope{}, fmt.Errorf("invalid scope %q", value)
	}
	switch kind {
	case scopeAuctionKind, scopeConsignerKind, scopeDriverKind:
	default:
		return Scope{}, fmt.Errorf("unsupported scope kind %q", kind)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Scope{}, fmt.Errorf("invalid scope id: %w", err)
	}
	return Scope{Kind: kind, ID: id}, nil
}

// Key renders the scope back into its canonical string form.
func (s Scope) Key() string {
	if s.Kind == ScopeAll {
		return ScopeAll
	}
	return s.Kind + ":" + s.ID.String()
}

// IsAuction reports whether the scope targets a single auction.
func (s Scope) IsAuction() bool { return s.Kind == scopeAuctionKind }

// IsConsigner reports whether the scope targets one consigner's auctions.
func (s Scope) IsConsigner() bool { return s.Kind == scopeConsignerKind }

// IsDriver reports whether the scope targets one driver's auctions.
func (s Scope) IsDriver() bool { return s.Kind == scopeDriverKind }

func encode(change Change) ([]byte, error) {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	return json.Marshal(change)
}

func decode(payload []byte) (Change, error) {
	var change Change
	if err := json.Unmarshal(payload, &change); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	return change, nil
}
