/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import (
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// ActorPool multiplexes many actors' mailboxes over a bounded set of
// goroutines. It is the Go realization of the `client-threads` and
// `channel-threads` configuration keys (spec §5.1): each Client or Channel
// owns a mailbox, but the pool caps how many mailboxes drain concurrently,
// the analogue of original_source/src/main.rs's `build_arbiters`.
type ActorPool struct {
	workers *pool.Pool
}

// NewActorPool returns a pool bounded to the given number of worker
// goroutines. A count below 1 is treated as 1.
func NewActorPool(workers int) *ActorPool {
	if workers < 1 {
		workers = 1
	}
	return &ActorPool{workers: pool.New().WithMaxGoroutines(workers)}
}

// mailbox is an unbounded FIFO task queue with at-most-one-active-drainer
// semantics: a given actor's handlers never run concurrently with each
// other, no matter how many ActorPool workers exist, satisfying the
// single-threaded-per-actor rule in spec §5.
type mailbox struct {
	pool *ActorPool

	mu      sync.Mutex
	tasks   []func()
	running bool
}

func newMailbox(p *ActorPool) *mailbox {
	return &mailbox{pool: p}
}

// enqueue schedules task to run on the actor's pool, preserving arrival order
// relative to every other task enqueued on this mailbox.
func (m *mailbox) enqueue(task func()) {
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.pool.workers.Go(m.drain)
}

func (m *mailbox) drain() {
	for {
		m.mu.Lock()
		if len(m.tasks) == 0 {
			m.running = false
			m.mu.Unlock()
			return
		}
		task := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.mu.Unlock()

		task()
	}
}

// singleActor is a dedicated-goroutine mailbox for the two singleton actors
// (Server, Persistence), equivalent to a mailbox backed by an ActorPool of
// size one but without the pool bookkeeping.
type singleActor struct {
	inbox chan func()
}

func newSingleActor(queueLen int) *singleActor {
	a := &singleActor{inbox: make(chan func(), queueLen)}
	go a.run()
	return a
}

func (a *singleActor) run() {
	for task := range a.inbox {
		task()
	}
}

func (a *singleActor) enqueue(task func()) {
	a.inbox <- task
}
