// Package sched runs the maintenance sweeps that message flow never
// triggers: relationship decay, idle-channel pings, and re-engagement
// pings for users who went quiet.
package sched

import (
	"context"
	"fmt"
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/kokonet/kokobot/internal/config"
)

type Service struct {
	cfg  config.PingsConfig
	cron *rcron.Cron

	// Job callbacks, wired by the gateway before Start.
	OnDecay    func()
	OnIdlePing func()
	OnAwayPing func()
}

func New(cfg config.PingsConfig) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) Start(ctx context.Context) error {
	s.cron = rcron.New(rcron.WithSeconds())

	if _, err := s.cron.AddFunc(s.cfg.DecayCronExpr, func() {
		if s.OnDecay != nil {
			log.Printf("[sched] running relationship decay sweep")
			s.OnDecay()
		}
	}); err != nil {
		return fmt.Errorf("register decay job (%q): %w", s.cfg.DecayCronExpr, err)
	}

	if s.cfg.Enabled {
		idleExpr := fmt.Sprintf("@every %dm", s.cfg.IdleMinutes)
		if _, err := s.cron.AddFunc(idleExpr, func() {
			if s.OnIdlePing != nil {
				s.OnIdlePing()
			}
		}); err != nil {
			return fmt.Errorf("register idle ping job: %w", err)
		}

		awayExpr := fmt.Sprintf("@every %dm", s.cfg.AwayMinutes)
		if _, err := s.cron.AddFunc(awayExpr, func() {
			if s.OnAwayPing != nil {
				s.OnAwayPing()
			}
		}); err != nil {
			return fmt.Errorf("register away ping job: %w", err)
		}
	}

	s.cron.Start()
	log.Printf("[sched] started (pings enabled=%v)", s.cfg.Enabled)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[sched] stop timeout waiting for running jobs")
	}
	log.Printf("[sched] stopped")
}
