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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestNotificationGate_ScenarioE covers a 5/60s/300s gate with six
// CanSend calls within 1s: five admitted, the sixth denied and cooldown
// begins; still denied at +299s; admitted again at +301s.
func TestNotificationGate_ScenarioE(t *testing.T) {
	g := NewNotificationGate(5, 60*time.Second, 300*time.Second)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		admitted := g.CanSend(base.Add(time.Duration(i)*time.Millisecond), false)
		assert.Truef(t, admitted, "send %d should be admitted", i)
	}

	sixth := g.CanSend(base.Add(900*time.Millisecond), false)
	assert.False(t, sixth, "sixth send within the window should be denied")

	stillDenied := g.CanSend(base.Add(299*time.Second), false)
	assert.False(t, stillDenied, "cooldown has not yet expired at +299s")

	admittedAgain := g.CanSend(base.Add(301*time.Second), false)
	assert.True(t, admittedAgain, "cooldown should have expired by +301s")
}

func TestNotificationGate_ForceBypasses(t *testing.T) {
	g := NewNotificationGate(1, time.Minute, time.Hour)
	base := time.Now()

	assert.True(t, g.CanSend(base, false))
	assert.False(t, g.CanSend(base.Add(time.Second), false))
	assert.True(t, g.CanSend(base.Add(2*time.Second), true), "force should bypass cooldown")
}

func TestNotificationGate_RollingWindowUpperBound(t *testing.T) {
	g := NewNotificationGate(3, 10*time.Second, time.Minute)
	base := time.Now()

	admitted := 0
	for i := 0; i < 100; i++ {
		if g.CanSend(base.Add(time.Duration(i)*100*time.Millisecond), false) {
			admitted++
		}
	}
	// Even spread across 10s windows, the hard-cooldown policy never admits
	// more than maxMessages before a full cooldown elapses.
	assert.LessOrEqual(t, admitted, 3)
}

func TestStalenessState_ScenarioC(t *testing.T) {
	s := NewStalenessState()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	upstream := now.Add(-3 * time.Hour)
	threshold := 2 * time.Hour

	assert.True(t, s.Observe("Dynamic_TC2", upstream, now, threshold), "first stale check should alert")

	for i := 1; i <= 5; i++ {
		tick := now.Add(time.Duration(i) * 2 * time.Minute)
		assert.False(t, s.Observe("Dynamic_TC2", upstream, tick, threshold), "repeat checks should not re-alert")
	}

	advanced := now.Add(10 * time.Minute)
	assert.False(t, s.Observe("Dynamic_TC2", advanced, advanced, threshold), "fresh upstream is not stale")

	stillFresh := s.Observe("Dynamic_TC2", advanced, advanced.Add(time.Minute), threshold)
	assert.False(t, stillFresh)
}

func TestStalenessState_ResetsOnAdvance(t *testing.T) {
	s := NewStalenessState()
	now := time.Now()
	threshold := time.Hour

	stale := now.Add(-2 * time.Hour)
	assert.True(t, s.Observe("t", stale, now, threshold))
	assert.False(t, s.Observe("t", stale, now.Add(time.Minute), threshold))

	// Upstream advances but is still older than threshold: alert flag reset,
	// so a new alert fires once.
	lessStale := now.Add(-90 * time.Minute)
	assert.True(t, s.Observe("t", lessStale, now.Add(2*time.Minute), threshold))
}
