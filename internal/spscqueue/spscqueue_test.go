/*
 * This file is part of Silencer.
 * Copyright (C) 2026 Explicitly Audio Systems
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package spscqueue

import (
	"sync"
	"testing"
)

func TestQueue_CapacityRoundsUpToPowerOfTwo(t *testing.T) {
	q := New[int](5)
	if q.Cap() != 8 {
		t.Fatalf("Cap() = %d, want 8", q.Cap())
	}
}

func TestQueue_PushPopFIFOOrder(t *testing.T) {
	q := New[int](4)
	for i := 0; i < 4; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) unexpectedly failed", i)
		}
	}
	if q.Push(99) {
		t.Fatal("Push on a full queue should return false")
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Fatalf("Pop() = (%d, %v), want (%d, true)", v, ok, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop on an empty queue should return false")
	}
}

// TestQueue_FullOnDrop mirrors spec.md scenario 3: a producer that keeps
// attempting pushes against a consumer that never drains sees exactly
// n_attempted - capacity failures.
func TestQueue_FullOnDrop(t *testing.T) {
	q := New[int](64)
	attempted := 200
	failures := 0
	for i := 0; i < attempted; i++ {
		if !q.Push(i) {
			failures++
		}
	}
	wantFailures := attempted - q.Cap()
	if failures != wantFailures {
		t.Fatalf("failures = %d, want %d", failures, wantFailures)
	}
}

// TestQueue_ConcurrentProducerConsumerPreservesOrder exercises the SPSC
// contract under the race detector: values arrive at the consumer in the
// exact order the producer pushed them (spec.md invariant 5).
func TestQueue_ConcurrentProducerConsumerPreservesOrder(t *testing.T) {
	q := New[int](16)
	const n = 100000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !q.Push(i) {
			}
		}
	}()

	got := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for len(got) < n {
			if v, ok := q.Pop(); ok {
				got = append(got, v)
			}
		}
	}()

	wg.Wait()
	for i, v := range got {
		if v != i {
			t.Fatalf("out-of-order delivery at index %d: got %d", i, v)
		}
	}
}
