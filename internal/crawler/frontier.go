package crawler

import (
	"sort"
	"time"
)

// Frontier owns the discovery sets. It is not safe for concurrent use; the
// engine only mutates it from the discovery goroutine and between phases.
type Frontier struct {
	visited     map[string]struct{}
	pending     []string
	pendingSet  map[string]struct{}
	productURLs map[string]struct{}
	productList []string
}

// NewFrontier returns an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		visited:     make(map[string]struct{}),
		pendingSet:  make(map[string]struct{}),
		productURLs: make(map[string]struct{}),
	}
}

// Enqueue appends url to the pending queue unless it was already visited or
// is already pending. It reports whether the URL was added.
func (f *Frontier) Enqueue(url string) bool {
	if url == "" {
		return false
	}
	if _, ok := f.visited[url]; ok {
		return false
	}
	if _, ok := f.pendingSet[url]; ok {
		return false
	}
	f.pending = append(f.pending, url)
	f.pendingSet[url] = struct{}{}
	return true
}

// Next pops the oldest pending URL that has not been visited.
func (f *Frontier) Next() (string, bool) {
	for len(f.pending) > 0 {
		url := f.pending[0]
		f.pending = f.pending[1:]
		delete(f.pendingSet, url)
		if _, ok := f.visited[url]; ok {
			continue
		}
		return url, true
	}
	return "", false
}

// MarkVisited records url as fetched.
func (f *Frontier) MarkVisited(url string) {
	f.visited[url] = struct{}{}
}

// IsVisited reports whether url was fetched.
func (f *Frontier) IsVisited(url string) bool {
	_, ok := f.visited[url]
	return ok
}

// AddProductURL records url as a product page. It reports whether it was new.
func (f *Frontier) AddProductURL(url string) bool {
	if url == "" {
		return false
	}
	if _, ok := f.productURLs[url]; ok {
		return false
	}
	f.productURLs[url] = struct{}{}
	f.productList = append(f.productList, url)
	return true
}

// ProductURLs returns product URLs in discovery order.
func (f *Frontier) ProductURLs() []string {
	return append([]string(nil), f.productList...)
}

// PendingLen returns the number of queued URLs.
func (f *Frontier) PendingLen() int {
	return len(f.pending)
}

// VisitedLen returns the number of visited URLs.
func (f *Frontier) VisitedLen() int {
	return len(f.visited)
}

// Snapshot captures the frontier for persistence.
func (f *Frontier) Snapshot(now time.Time) State {
	visited := make([]string, 0, len(f.visited))
	for url := range f.visited {
		visited = append(visited, url)
	}
	sort.Strings(visited)
	return State{
		VisitedURLs: visited,
		PendingURLs: append([]string{}, f.pending...),
		ProductURLs: append([]string{}, f.productList...),
		LastUpdated: now.UTC(),
	}
}

// Restore replaces the frontier contents with a saved state. Pending entries
// that were already visited are dropped so the dedup invariant holds.
func (f *Frontier) Restore(state State) {
	*f = *NewFrontier()
	for _, url := range state.VisitedURLs {
		f.MarkVisited(url)
	}
	for _, url := range state.PendingURLs {
		f.Enqueue(url)
	}
	for _, url := range state.ProductURLs {
		f.AddProductURL(url)
	}
}

// Requeue puts url back at the head of the queue, used when a fetch is
// abandoned because the run was interrupted.
func (f *Frontier) Requeue(url string) {
	if url == "" || f.IsVisited(url) {
		return
	}
	if _, ok := f.pendingSet[url]; ok {
		return
	}
	f.pending = append([]string{url}, f.pending...)
	f.pendingSet[url] = struct{}{}
}
