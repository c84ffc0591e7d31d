// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package baseline

import (
	"context"
	"sync"
	"time"

	"github.com/flomentum/vitalscore/pkg/logging"
)

// UserTimezone identifies a user and the timezone their local offset is
// computed against.
type UserTimezone struct {
	User     string
	Timezone string
}

// UserLister enumerates the users the scheduler should recompute
// baselines for on each tick.
type UserLister func(ctx context.Context) ([]UserTimezone, error)

// Scheduler runs the nightly baseline recompute at each user's
// configured local hour, using the ticker + done-channel pattern.
type Scheduler struct {
	calc        *Calculator
	users       UserLister
	localHour   int
	tickEvery   time.Duration
	logger      *logging.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	lastRun map[string]string // user -> YYYY-MM-DD of last completed recompute
}

// NewScheduler constructs a Scheduler that checks every tickEvery for
// users whose local time has just crossed localHour.
func NewScheduler(calc *Calculator, users UserLister, localHour int, tickEvery time.Duration, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		calc:      calc,
		users:     users,
		localHour: localHour,
		tickEvery: tickEvery,
		logger:    logger,
		lastRun:   map[string]string{},
	}
}

// Start begins the background polling goroutine. Calling Start on a
// scheduler that is already running is a no-op and returns nil.
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

// tick recomputes baselines for every user whose local hour matches
// localHour and who hasn't already run today.
func (s *Scheduler) tick(ctx context.Context) {
	users, err := s.users(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("baseline scheduler: list users", "error", err)
		}
		return
	}
	for _, u := range users {
		loc, err := time.LoadLocation(u.Timezone)
		if err != nil {
			continue
		}
		now := time.Now().In(loc)
		if now.Hour() != s.localHour {
			continue
		}
		today := now.Format("2006-01-02")
		s.mu.Lock()
		already := s.lastRun[u.User] == today
		s.mu.Unlock()
		if already {
			continue
		}
		if err := s.calc.Recompute(ctx, u.User, now); err != nil {
			if s.logger != nil {
				s.logger.Error("baseline recompute failed", "user", u.User, "error", err)
			}
			continue
		}
		s.mu.Lock()
		s.lastRun[u.User] = today
		s.mu.Unlock()
	}
}
