/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package workerpool drives the fixed-fan-out concurrent workloads spec.md
// §8's stress scenario needs: T goroutines, each running to completion
// against shared allocator state. Unlike an elastic background-task pool,
// every worker here is expected to run and be joined, so there is no idle
// eviction or task queue — just a bounded fan-out and a single point where
// any worker's panic is surfaced to the caller.
package workerpool

import (
	"log"
	"runtime/debug"
	"sync"
)

// PanicHandler is invoked, before the panic is re-raised on the caller's
// goroutine, for every worker that panics. It takes the worker's index and
// the recovered value.
type PanicHandler func(worker int, r interface{})

func defaultPanicHandler(worker int, r interface{}) {
	log.Printf("workerpool: panic in worker %d: %v: %s", worker, r, debug.Stack())
}

// Run spawns n goroutines, each invoked as fn(workerID) for workerID in
// [0,n), and blocks until all of them return. If one or more workers
// panic, Run logs each via handler (or defaultPanicHandler if nil), waits
// for every other worker to finish regardless, and then re-panics with the
// first recorded panic value — matching spec.md §7's "invariant violation
// → abort" for code driven through this pool, rather than swallowing it the
// way a long-lived background pool would.
func Run(n int, handler PanicHandler, fn func(workerID int)) {
	if handler == nil {
		handler = defaultPanicHandler
	}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		first   interface{}
		hasPanic bool
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(workerID int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					handler(workerID, r)
					mu.Lock()
					if !hasPanic {
						hasPanic = true
						first = r
					}
					mu.Unlock()
				}
			}()
			fn(workerID)
		}(i)
	}
	wg.Wait()
	if hasPanic {
		panic(first)
	}
}
