package livesync

import (
	"time"

	"github.com/angelmondragon/haulbid-backend/pkg/config"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

// Conditions are the policy inputs at one scheduling point.
type Conditions struct {
	Channel ChannelState
	Visible bool
	Idle    time.Duration
	// Status is the viewed auction's status. Collection scopes leave it
	// empty and are scheduled as active.
	Status enums.AuctionStatus
}

// Policy maps conditions to the next poll interval.
type Policy struct {
	Active        time.Duration
	ActivePushed  time.Duration
	Idle          time.Duration
	Terminal      time.Duration
	Background    time.Duration
	IdleThreshold time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Active:        15 * time.Second,
		ActivePushed:  60 * time.Second,
		Idle:          60 * time.Second,
		Terminal:      60 * time.Second,
		Background:    300 * time.Second,
		IdleThreshold: 5 * time.Minute,
	}
}

// PolicyFromConfig overlays configured intervals on the defaults.
func PolicyFromConfig(cfg config.SyncConfig) Policy {
	p := DefaultPolicy()
	overlay(&p.Active, cfg.ActiveInterval)
	overlay(&p.ActivePushed, cfg.ActivePushedInterval)
	overlay(&p.Idle, cfg.IdleInterval)
	overlay(&p.Terminal, cfg.TerminalInterval)
	overlay(&p.Background, cfg.BackgroundInterval)
	overlay(&p.IdleThreshold, cfg.IdleThreshold)
	return p
}

func overlay(dst *time.Duration, value time.Duration) {
	if value > 0 {
		*dst = value
	}
}

// NextInterval is pure: same conditions, same interval.
func (p Policy) NextInterval(c Conditions) time.Duration {
	if !c.Visible {
		return p.Background
	}
	idle := c.Idle > p.IdleThreshold
	if c.Status.IsTerminal() {
		if idle {
			return p.Background
		}
		return p.Terminal
	}
	if idle {
		return p.Idle
	}
	if c.Channel == ChannelConnected {
		return p.ActivePushed
	}
	return p.Active
}
