// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/flomentum/vitalscore/internal/aggregation"
	"github.com/flomentum/vitalscore/internal/baseline"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/pkg/logging"
)

// EventLister loads a user's recent life-event log for the scan window.
type EventLister func(ctx context.Context, user string, sinceDate string) ([]model.LifeEvent, error)

// Scheduler runs the correlation scan at most once every minRescan
// interval per user (§5 backpressure: "correlation scans are
// rate-limited per user, >=24h between full scans").
type Scheduler struct {
	scanner   *Scanner
	store     *Store
	days      *aggregation.SampleStore
	events    EventLister
	users     baseline.UserLister
	windowDays int
	minRescan time.Duration
	tickEvery time.Duration
	logger    *logging.Logger

	mu       sync.Mutex
	running  bool
	done     chan struct{}
	lastScan map[string]time.Time
}

// NewScheduler constructs a correlation Scheduler.
func NewScheduler(scanner *Scanner, store *Store, days *aggregation.SampleStore, events EventLister, users baseline.UserLister, windowDays int, minRescan, tickEvery time.Duration, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		scanner:    scanner,
		store:      store,
		days:       days,
		events:     events,
		users:      users,
		windowDays: windowDays,
		minRescan:  minRescan,
		tickEvery:  tickEvery,
		logger:     logger,
		lastScan:   map[string]time.Time{},
	}
}

// Start begins the background polling goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)
	return nil
}

// Stop signals the polling goroutine to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.done)
	s.running = false
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	users, err := s.users(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("correlation scheduler: list users", "error", err)
		}
		return
	}
	now := time.Now()
	for _, u := range users {
		s.mu.Lock()
		last, ok := s.lastScan[u.User]
		s.mu.Unlock()
		if ok && now.Sub(last) < s.minRescan {
			continue
		}
		if err := s.scanUser(ctx, u.User, now); err != nil {
			if s.logger != nil {
				s.logger.Error("correlation scan failed", "user", u.User, "error", err)
			}
			continue
		}
		s.mu.Lock()
		s.lastScan[u.User] = now
		s.mu.Unlock()
	}
}

func (s *Scheduler) scanUser(ctx context.Context, user string, now time.Time) error {
	since := now.AddDate(0, 0, -s.windowDays).Format("2006-01-02")
	days, err := s.days.DailyRowsSince(ctx, user, since)
	if err != nil {
		return err
	}
	events, err := s.events(ctx, user, since)
	if err != nil {
		return err
	}

	for _, candidate := range s.scanner.Scan(user, days, events, now) {
		active, err := s.store.HasActiveSignature(ctx, user, candidate.Card.PatternSignature)
		if err != nil {
			return err
		}
		if active {
			continue
		}
		if err := s.store.Create(ctx, candidate.Card); err != nil {
			return err
		}
	}
	return nil
}
