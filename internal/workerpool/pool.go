package workerpool

import (
	"container/heap"
	"sync"

	"github.com/yungbote/eventscout-backend/internal/logger"
)

// Pool runs submitted funcs on a fixed number of workers, highest priority
// first. Submissions beyond the worker count queue instead of spawning
// goroutines, which is what gives the scheduler its backpressure.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  itemHeap
	seq    uint64
	active int
	closed bool
	wg     sync.WaitGroup
	log    *logger.Logger
}

type item struct {
	priority int
	seq      uint64
	fn       func()
}

func New(name string, concurrency int, baseLog *logger.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &Pool{log: baseLog.With("pool", name)}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go p.worker()
	}
	p.log.Debug("Worker pool started", "concurrency", concurrency)
	return p
}

// Submit enqueues fn and reports whether it was accepted. Higher priority
// runs first; equal priorities run in submission order. A closed pool
// rejects the func so the caller can settle whatever was waiting on it.
func (p *Pool) Submit(priority int, fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.log.Warn("Submit on closed pool rejected")
		return false
	}
	p.seq++
	heap.Push(&p.items, item{priority: priority, seq: p.seq, fn: fn})
	p.cond.Signal()
	return true
}

// Wait blocks until the queue is empty and no func is running.
func (p *Pool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.items.Len() > 0 || p.active > 0 {
		p.cond.Wait()
	}
}

// Close stops the workers after the queue drains and waits for them.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.items.Len() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.items.Len() == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		it := heap.Pop(&p.items).(item)
		p.active++
		p.mu.Unlock()

		it.fn()

		p.mu.Lock()
		p.active--
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

type itemHeap []item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
