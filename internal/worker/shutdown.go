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

// Package worker holds the collector's three sync loop kinds: DB-to-DB,
// Foreign-to-DB, and spreadsheet file ingest. Each loop owns one job's
// watermark and failure policy; main wires one goroutine per job.
package worker

import (
	"context"
	"time"
)

// MinBackoff and MaxBackoff bound the exponential retry delay applied after
// a failed cycle. The delay resets to MinBackoff on the next successful
// cycle.
const (
	MinBackoff = 1 * time.Second
	MaxBackoff = 60 * time.Second
)

// NextBackoff doubles prev, capped at MaxBackoff. A non-positive prev
// starts the sequence at MinBackoff.
func NextBackoff(prev time.Duration) time.Duration {
	if prev <= 0 {
		return MinBackoff
	}
	next := prev * 2
	if next > MaxBackoff {
		return MaxBackoff
	}
	return next
}

// sleepOrDone waits for d or until ctx is cancelled, whichever comes first,
// reporting whether the context ended the wait.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() != nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}

// Semaphore bounds the number of concurrently in-flight blocking operations
// (foreign-database queries, network-share file reads) shared across every
// worker goroutine that dispatches through it.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore admitting at most n concurrent holders.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired by Acquire.
func (s *Semaphore) Release() {
	<-s.slots
}
