package sched

import (
	"context"
	"testing"
	"time"

	"github.com/kokonet/kokobot/internal/config"
)

func TestStartRegistersJobs(t *testing.T) {
	s := New(config.PingsConfig{
		Enabled:       true,
		IdleMinutes:   20,
		AwayMinutes:   30,
		DecayCronExpr: config.DefaultDecayCronExpr,
	})
	s.OnDecay = func() {}
	s.OnIdlePing = func() {}
	s.OnAwayPing = func() {}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	s.Stop()
}

func TestStartBadCronExpr(t *testing.T) {
	s := New(config.PingsConfig{DecayCronExpr: "not a cron expression"})
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error for malformed cron expression")
	}
}

func TestDecayJobFires(t *testing.T) {
	s := New(config.PingsConfig{
		// Six-field expression: every second.
		DecayCronExpr: "* * * * * *",
	})
	fired := make(chan struct{}, 1)
	s.OnDecay = func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("decay job did not fire")
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := New(config.PingsConfig{})
	s.Stop() // must not panic
}
