package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsScheduleOrder(t *testing.T) {
	registry := NewRegistry()
	expiry := &stubJob{name: "auction-expiry"}
	reconcile := &stubJob{name: "aggregate-reconcile"}
	registry.Register(expiry, time.Minute)
	registry.Register(nil, time.Minute)
	registry.Register(reconcile, 10*time.Minute)

	entries := registry.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Job != expiry || entries[0].Every != time.Minute {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Job != reconcile || entries[1].Every != 10*time.Minute {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	entries[0].Job = nil
	if registry.Entries()[0].Job == nil {
		t.Fatalf("internal slice leaked")
	}
}
