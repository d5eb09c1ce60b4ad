// Package session owns the dashboard's credential. The Store keeps the
// in-memory token and its persisted copy in one Slot equal after every
// successful write, and logs the client out when the slot is cleared from
// somewhere else.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/dashboard/internal/platform/telemetry"
)

var ErrEmptyToken = errors.New("empty credential")

type EventKind int

const (
	EventLogin EventKind = iota
	EventLogout
	// EventExpired follows a credential the API rejected.
	EventExpired
	// EventInvalidated follows the slot being cleared by another client.
	EventInvalidated
)

func (k EventKind) String() string {
	switch k {
	case EventLogin:
		return "login"
	case EventLogout:
		return "logout"
	case EventExpired:
		return "expired"
	case EventInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Event is published to subscribers after each transition.
type Event struct {
	Kind       EventKind
	Generation uint64
	Reason     string
}

const subscriberBuffer = 16

type Store struct {
	slot    Slot
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	mu    sync.RWMutex
	token string
	gen   uint64

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

type Option func(*Store)

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New loads any persisted credential from slot, so a client started while
// another one is logged in starts logged in too.
func New(ctx context.Context, slot Slot, logger zerolog.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		slot:   slot,
		logger: logger.With().Str("component", "session").Logger(),
		subs:   make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}

	token, ok, err := slot.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persisted credential: %w", err)
	}
	if ok {
		s.token = token
	}
	return s, nil
}

// CurrentToken returns the credential if the session is authenticated.
func (s *Store) CurrentToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *Store) IsAuthenticated() bool {
	_, ok := s.CurrentToken()
	return ok
}

// Generation changes on every login, logout, expiry and invalidation.
// Asynchronous results tagged with an older generation belong to a session
// that no longer exists.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Login persists token and then adopts it. If the slot write fails the
// in-memory state is left as it was.
func (s *Store) Login(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.slot.Store(ctx, token); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.publish(Event{Kind: EventLogin, Generation: gen})
	return nil
}

// Logout clears the slot and the in-memory credential. Logging out twice is
// the same as logging out once.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.slot.Clear(ctx); err != nil {
		return fmt.Errorf("clear persisted credential: %w", err)
	}
	s.drop("", anyGeneration, EventLogout, "")
	return nil
}

// Expire ends the session after the API rejected token. It does nothing when
// token is no longer the current credential, so a late rejection of an old
// token cannot end a newer session. Memory is cleared even if the slot
// cannot be, because the credential is known to be unusable; the slot error
// is still returned.
func (s *Store) Expire(ctx context.Context, token, reason string) error {
	if current, ok := s.CurrentToken(); !ok || current != token {
		return nil
	}
	err := s.slot.Clear(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("clear expired credential")
		err = fmt.Errorf("clear persisted credential: %w", err)
	}
	s.drop(token, anyGeneration, EventExpired, reason)
	return err
}

// anyGeneration disables the generation check in drop.
const anyGeneration = ^uint64(0)

// drop clears the in-memory token and publishes kind if a token was set.
// A non-empty match restricts this to that token still being current, and
// gen other than anyGeneration to the session not having changed since.
func (s *Store) drop(match string, gen uint64, kind EventKind, reason string) {
	s.mu.Lock()
	if s.token == "" || (match != "" && s.token != match) || (gen != anyGeneration && s.gen != gen) {
		s.mu.Unlock()
		return
	}
	s.token = ""
	s.gen++
	next := s.gen
	s.mu.Unlock()

	s.publish(Event{Kind: kind, Generation: next, Reason: reason})
}

// Observe watches the slot for changes made by other clients and logs this
// client out when the persisted credential disappears. The returned function
// stops watching and waits for the watcher to exit; cancelling ctx has the
// same effect.
func (s *Store) Observe(ctx context.Context) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)
	changes, err := s.slot.Watch(watchCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch credential slot: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range changes {
			if c.Origin != "" && c.Origin == s.slot.Origin() {
				continue
			}
			s.reconcile(watchCtx)
		}
		if watchCtx.Err() == nil {
			s.logger.Warn().Msg("credential watch ended; external logouts are no longer observed")
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

// reconcile compares the slot with memory after an external change. Only a
// cleared slot is acted on; a credential written elsewhere is not adopted.
// A login that lands between the read and the drop wins.
func (s *Store) reconcile(ctx context.Context) {
	gen := s.Generation()
	_, present, err := s.slot.Load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("reload credential after change")
		}
		return
	}
	if present {
		return
	}
	if s.IsAuthenticated() {
		s.logger.Info().Msg("credential cleared by another client")
	}
	s.drop("", gen, EventInvalidated, "credential cleared by another client")
}

// Subscribe returns a channel of session events and a function that
// unsubscribes and closes it. Slow subscribers miss events rather than
// blocking the store.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) publish(e Event) {
	s.metrics.ObserveSession(e.Kind.String())
	s.logger.Debug().Str("event", e.Kind.String()).Uint64("generation", e.Generation).Msg("session transition")

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			s.logger.Warn().Str("event", e.Kind.String()).Msg("session subscriber lagging, event dropped")
		}
	}
}
