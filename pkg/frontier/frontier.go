// Package frontier holds the crawl order: a FIFO queue of pending URLs, the
// set of URLs already visited and the set of every internal URL ever seen.
//
// A URL is marked visited when it is claimed by Next, not when it is
// discovered, so a page linked from many places is queued and visited once.
package frontier

import (
	"container/list"
	"sync"
)

// Frontier is the breadth-first work queue of a single crawl run.
type Frontier struct {
	mu sync.Mutex

	pending  *list.List
	enqueued map[string]struct{}
	visited  map[string]struct{}

	discovered      map[string]struct{}
	discoveredOrder []string

	maxVisits int
}

// New returns an empty frontier that hands out at most maxVisits URLs.
// A non-positive maxVisits means no cap.
func New(maxVisits int) *Frontier {
	return &Frontier{
		pending:    list.New(),
		enqueued:   make(map[string]struct{}),
		visited:    make(map[string]struct{}),
		discovered: make(map[string]struct{}),
		maxVisits:  maxVisits,
	}
}

// Seed queues the start URL and records it as discovered.
func (f *Frontier) Seed(url string) {
	f.Offer(url)
}

// Offer records url as discovered and queues it unless it was already
// visited or queued. It reports whether the URL was queued.
func (f *Frontier) Offer(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.discovered[url]; !ok {
		f.discovered[url] = struct{}{}
		f.discoveredOrder = append(f.discoveredOrder, url)
	}
	if _, ok := f.visited[url]; ok {
		return false
	}
	if _, ok := f.enqueued[url]; ok {
		return false
	}
	f.enqueued[url] = struct{}{}
	f.pending.PushBack(url)
	return true
}

// IsDiscovered reports whether url has been offered before.
func (f *Frontier) IsDiscovered(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.discovered[url]
	return ok
}

// Next claims the oldest pending URL and marks it visited. Entries that
// were visited in the meantime are dropped without counting against the
// cap. It returns false once the queue is empty or the cap is reached.
func (f *Frontier) Next() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.maxVisits > 0 && len(f.visited) >= f.maxVisits {
			return "", false
		}
		elem := f.pending.Front()
		if elem == nil {
			return "", false
		}
		url := f.pending.Remove(elem).(string)
		if _, ok := f.visited[url]; ok {
			continue
		}
		f.visited[url] = struct{}{}
		return url, true
	}
}

// Exhausted reports whether no more URLs can be claimed.
func (f *Frontier) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending.Len() == 0 || (f.maxVisits > 0 && len(f.visited) >= f.maxVisits)
}

// VisitedCount returns the number of claimed URLs.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Pending returns a copy of the queue, oldest first.
func (f *Frontier) Pending() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, f.pending.Len())
	for e := f.pending.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}

// PendingCount returns the queue length.
func (f *Frontier) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending.Len()
}

// Discovered returns every URL ever offered, in first-seen order.
func (f *Frontier) Discovered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.discoveredOrder))
	copy(out, f.discoveredOrder)
	return out
}

// DiscoveredCount returns the size of the discovered set.
func (f *Frontier) DiscoveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.discoveredOrder)
}
