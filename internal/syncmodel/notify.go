/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package syncmodel

import (
	"sync"
	"time"
)

// NotificationGate is a token-bucket style rate limiter protecting the
// outbound alert channel. Unlike golang.org/x/time/rate's smooth refill,
// the source system (and this rewrite, to preserve its observable
// behaviour) uses a harder admit/cooldown policy: once MaxMessages is sent
// within WindowSeconds, the gate closes entirely for CooldownSeconds rather
// than gradually refilling.
type NotificationGate struct {
	mu sync.Mutex

	maxMessages int
	window      time.Duration
	cooldown    time.Duration

	history         []time.Time
	cooldownUntil   time.Time
	inCooldown      bool
	suppressedCount int
}

// NewNotificationGate creates a gate admitting at most maxMessages sends per
// window, then denying for cooldown once the limit is hit.
func NewNotificationGate(maxMessages int, window, cooldown time.Duration) *NotificationGate {
	return &NotificationGate{
		maxMessages: maxMessages,
		window:      window,
		cooldown:    cooldown,
	}
}

// CanSend reports whether a message may be sent right now, at time now. It
// mutates gate state: trimming expired history, checking and clearing
// cooldown, and recording admitted sends.
//
// force bypasses every check (used for critical shutdown-related messages)
// but still records the send in history so it counts toward future windows.
func (g *NotificationGate) CanSend(now time.Time, force bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.trimHistory(now)

	if g.inCooldown {
		if now.Before(g.cooldownUntil) {
			if force {
				g.history = append(g.history, now)
				return true
			}
			g.suppressedCount++
			return false
		}
		// Cooldown has expired.
		g.inCooldown = false
		g.suppressedCount = 0
	}

	if !force && len(g.history) >= g.maxMessages {
		g.inCooldown = true
		g.cooldownUntil = now.Add(g.cooldown)
		g.suppressedCount++
		return false
	}

	g.history = append(g.history, now)
	return true
}

// SuppressedCount returns the number of sends suppressed during the current
// cooldown, counting the denial that started it. It is zero when the gate
// has never been in cooldown, and resets to zero once a cooldown expires.
func (g *NotificationGate) SuppressedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressedCount
}

func (g *NotificationGate) trimHistory(now time.Time) {
	cutoff := now.Add(-g.window)
	kept := g.history[:0]
	for _, t := range g.history {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.history = kept
}

// StalenessState tracks, per destination table, whether a staleness alert
// has already been sent for the current stale period, and the last observed
// upstream timestamp.
type StalenessState struct {
	mu    sync.Mutex
	state map[string]*tableStaleness
}

type tableStaleness struct {
	alertSent      bool
	lastUpstreamTS time.Time
}

// NewStalenessState creates an empty per-table staleness tracker.
func NewStalenessState() *StalenessState {
	return &StalenessState{state: make(map[string]*tableStaleness)}
}

// Observe records the current upstream timestamp for table and reports
// whether a new staleness alert should be sent: the upstream is older than
// threshold relative to now, and no alert has been sent since upstream last
// advanced. An upstream timestamp newer than the last one observed resets
// any prior alert-sent flag.
func (s *StalenessState) Observe(table string, upstreamTS, now time.Time, threshold time.Duration) (shouldAlert bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[table]
	if !ok {
		st = &tableStaleness{}
		s.state[table] = st
	}

	if upstreamTS.After(st.lastUpstreamTS) {
		st.lastUpstreamTS = upstreamTS
		st.alertSent = false
	}

	stale := now.Sub(st.lastUpstreamTS) > threshold
	if stale && !st.alertSent {
		st.alertSent = true
		return true
	}
	return false
}
