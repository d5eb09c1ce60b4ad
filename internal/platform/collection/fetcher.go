// Package collection loads one page of a remote collection at a time and
// guarantees that only the most recently requested page is ever shown.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/dashboard/internal/platform/telemetry"
)

var (
	ErrInvalidPage = errors.New("page and size must be at least 1")
	ErrNoPage      = errors.New("no such page")
)

// Page is one remote response.
type Page[T any] struct {
	Items      []T
	TotalPages int
}

// FetchFunc performs the remote call for one page.
type FetchFunc[T any] func(ctx context.Context, page, size int) (Page[T], error)

// Ticket identifies one Load call. Seq increases with every call.
type Ticket struct {
	Seq  uint64
	Page int
	Size int
}

// Result is what a load thunk produces; hand it to Commit on the event loop.
type Result[T any] struct {
	Ticket Ticket
	Page   Page[T]
	Err    error
}

// Outcome reports what Commit did with a result.
type Outcome int

const (
	// Applied: the result replaced the page state.
	Applied Outcome = iota
	// Failed: the current request failed; the previous page is kept.
	Failed
	// Discarded: a newer request was issued after this one.
	Discarded
	// OutOfRange: the requested page is past the last page. State now points
	// at the last page and the caller should load it.
	OutOfRange
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return telemetry.FetchApplied
	case Failed:
		return telemetry.FetchFailed
	case Discarded:
		return telemetry.FetchDiscarded
	case OutOfRange:
		return "out_of_range"
	default:
		return "unknown"
	}
}

// State is a snapshot of the fetcher. PageNumber and TotalPages are zero
// until the first successful load; after that 1 <= PageNumber <= TotalPages.
type State[T any] struct {
	Items      []T
	PageNumber int
	TotalPages int
	Loading    bool
	Err        error
	UpdatedAt  time.Time
}

// Loaded reports whether any page has been applied yet.
func (s State[T]) Loaded() bool { return s.TotalPages > 0 }

// HasNext reports whether a page after the current one exists.
func (s State[T]) HasNext() bool { return s.Loaded() && s.PageNumber < s.TotalPages }

// HasPrevious reports whether a page before the current one exists.
func (s State[T]) HasPrevious() bool { return s.Loaded() && s.PageNumber > 1 }

type Fetcher[T any] struct {
	name    string
	fetch   FetchFunc[T]
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	mu     sync.RWMutex
	state  State[T]
	issued uint64
	size   int
}

type Option[T any] func(*Fetcher[T])

func WithMetrics[T any](m *telemetry.Metrics) Option[T] {
	return func(f *Fetcher[T]) { f.metrics = m }
}

// New returns a fetcher for the collection called name, which labels logs
// and metrics.
func New[T any](name string, fetch FetchFunc[T], logger zerolog.Logger, opts ...Option[T]) *Fetcher[T] {
	f := &Fetcher[T]{
		name:   name,
		fetch:  fetch,
		logger: logger.With().Str("collection", name).Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load issues a request for page and marks the fetcher loading. The returned
// thunk performs the remote call; it is safe to run off the event loop and
// never touches fetcher state.
func (f *Fetcher[T]) Load(page, size int) (func(context.Context) Result[T], error) {
	if page < 1 || size < 1 {
		return nil, fmt.Errorf("%w: page=%d size=%d", ErrInvalidPage, page, size)
	}

	f.mu.Lock()
	f.issued++
	ticket := Ticket{Seq: f.issued, Page: page, Size: size}
	f.size = size
	f.state.Loading = true
	f.mu.Unlock()

	f.logger.Debug().Uint64("seq", ticket.Seq).Int("page", page).Int("size", size).Msg("load issued")

	fetch := f.fetch
	return func(ctx context.Context) Result[T] {
		p, err := fetch(ctx, ticket.Page, ticket.Size)
		return Result[T]{Ticket: ticket, Page: p, Err: err}
	}, nil
}

// Commit applies r if it answers the most recently issued Load. Results of
// older requests are dropped whatever order they arrive in.
func (f *Fetcher[T]) Commit(r Result[T]) Outcome {
	f.mu.Lock()
	outcome := f.commitLocked(r)
	f.mu.Unlock()

	f.metrics.ObserveFetch(f.name, outcome.String())
	evt := f.logger.Debug()
	if outcome == Failed {
		evt = f.logger.Warn().Err(r.Err)
	}
	evt.Uint64("seq", r.Ticket.Seq).Int("page", r.Ticket.Page).Str("outcome", outcome.String()).Msg("load resolved")
	return outcome
}

func (f *Fetcher[T]) commitLocked(r Result[T]) Outcome {
	if r.Ticket.Seq != f.issued {
		return Discarded
	}
	f.state.Loading = false

	if r.Err != nil {
		f.state.Err = r.Err
		return Failed
	}

	total := r.Page.TotalPages
	if total < 1 {
		total = 1
	}
	f.state.Err = nil
	f.state.TotalPages = total
	f.state.UpdatedAt = time.Now()
	f.state.Items = append([]T(nil), r.Page.Items...)

	if r.Ticket.Page > total {
		f.state.PageNumber = total
		return OutOfRange
	}
	f.state.PageNumber = r.Ticket.Page
	return Applied
}

// State returns a copy of the current state.
func (f *Fetcher[T]) State() State[T] {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := f.state
	s.Items = append([]T(nil), f.state.Items...)
	return s
}

// AppendLocal adds an item created by this client to the visible page
// without refetching. TotalPages is left as it was.
func (f *Fetcher[T]) AppendLocal(item T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Items = append(f.state.Items, item)
	if f.state.TotalPages == 0 {
		f.state.PageNumber, f.state.TotalPages = 1, 1
	}
}

// Next loads the page after the current one.
func (f *Fetcher[T]) Next() (func(context.Context) Result[T], error) {
	f.mu.RLock()
	s, size := f.state, f.size
	f.mu.RUnlock()
	if !s.HasNext() {
		return nil, ErrNoPage
	}
	return f.Load(s.PageNumber+1, size)
}

// Prev loads the page before the current one.
func (f *Fetcher[T]) Prev() (func(context.Context) Result[T], error) {
	f.mu.RLock()
	s, size := f.state, f.size
	f.mu.RUnlock()
	if !s.HasPrevious() {
		return nil, ErrNoPage
	}
	return f.Load(s.PageNumber-1, size)
}

// Reload fetches the current page again, or page 1 if nothing is loaded.
func (f *Fetcher[T]) Reload(size int) (func(context.Context) Result[T], error) {
	f.mu.RLock()
	page := f.state.PageNumber
	f.mu.RUnlock()
	if page < 1 {
		page = 1
	}
	return f.Load(page, size)
}

// Reset forgets all state. Requests already in flight are discarded when
// they resolve.
func (f *Fetcher[T]) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	f.state = State[T]{}
}
