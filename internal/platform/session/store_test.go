package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T, slot Slot) *Store {
	t.Helper()
	s, err := New(context.Background(), slot, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type failingSlot struct {
	Slot
	err error
}

func (f failingSlot) Store(context.Context, string) error { return f.err }
func (f failingSlot) Clear(context.Context) error         { return f.err }

func TestStore_LoginLogout(t *testing.T) {
	ctx := context.Background()
	slot := NewMemoryBackend().Open()
	s := newTestStore(t, slot)

	if s.IsAuthenticated() {
		t.Fatal("expected logged out at start")
	}
	if err := s.Login(ctx, "tok-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok, ok := s.CurrentToken(); !ok || tok != "tok-1" {
		t.Fatalf("expected tok-1, got %q %v", tok, ok)
	}
	if persisted, ok, _ := slot.Load(ctx); !ok || persisted != "tok-1" {
		t.Fatalf("expected slot to hold tok-1, got %q %v", persisted, ok)
	}

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if s.IsAuthenticated() {
		t.Fatal("expected logged out")
	}
	if _, ok, _ := slot.Load(ctx); ok {
		t.Fatal("expected slot cleared")
	}
}

func TestStore_LoginRejectsEmpty(t *testing.T) {
	s := newTestStore(t, NewMemoryBackend().Open())
	if err := s.Login(context.Background(), ""); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestStore_DoubleLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryBackend().Open())
	if err := s.Login(ctx, "tok"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("first Logout: %v", err)
	}
	gen := s.Generation()
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("second Logout: %v", err)
	}

	if s.IsAuthenticated() {
		t.Fatal("expected logged out")
	}
	if s.Generation() != gen {
		t.Errorf("second logout changed generation %d -> %d", gen, s.Generation())
	}
	if e := <-events; e.Kind != EventLogout {
		t.Errorf("expected logout event, got %v", e.Kind)
	}
	select {
	case e := <-events:
		t.Errorf("expected a single event, got extra %v", e.Kind)
	default:
	}
}

func TestStore_PersistFailureLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := newTestStore(t, backend.Open())
	if err := s.Login(ctx, "good"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	boom := errors.New("disk full")
	s.slot = failingSlot{Slot: s.slot, err: boom}

	if err := s.Login(ctx, "other"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped slot error, got %v", err)
	}
	if tok, _ := s.CurrentToken(); tok != "good" {
		t.Errorf("expected memory to keep good, got %q", tok)
	}
	if err := s.Logout(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped slot error, got %v", err)
	}
	if !s.IsAuthenticated() {
		t.Error("expected failed logout to leave session intact")
	}
}

func TestStore_LoadsPersistedCredential(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	if err := backend.Open().Store(ctx, "from-elsewhere"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	s := newTestStore(t, backend.Open())
	if tok, ok := s.CurrentToken(); !ok || tok != "from-elsewhere" {
		t.Fatalf("expected persisted token, got %q %v", tok, ok)
	}
}

func TestStore_ExternalClearLogsOut(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := newTestStore(t, backend.Open())
	if err := s.Login(ctx, "tok"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	stop, err := s.Observe(ctx)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer stop()

	other := backend.Open()
	if err := other.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	select {
	case e := <-events:
		if e.Kind != EventInvalidated {
			t.Fatalf("expected invalidated event, got %v", e.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for invalidation")
	}
	if s.IsAuthenticated() {
		t.Fatal("expected logged out after external clear")
	}
}

// gatedSlot holds the first Load that finds the slot empty until release is
// closed, once armed.
type gatedSlot struct {
	Slot
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func (g *gatedSlot) Load(ctx context.Context) (string, bool, error) {
	token, ok, err := g.Slot.Load(ctx)
	if !ok && err == nil && g.armed.CompareAndSwap(true, false) {
		close(g.paused)
		<-g.release
	}
	return token, ok, err
}

func TestStore_LoginDuringReconcileSurvives(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	slot := &gatedSlot{Slot: backend.Open(), paused: make(chan struct{}), release: make(chan struct{})}
	s := newTestStore(t, slot)
	if err := s.Login(ctx, "old"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	slot.armed.Store(true)
	stop, err := s.Observe(ctx)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer stop()

	if err := backend.Open().Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	select {
	case <-slot.paused:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the watcher to read the slot")
	}

	if err := s.Login(ctx, "fresh"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	close(slot.release)
	stop()

	tok, ok := s.CurrentToken()
	persisted, present, _ := slot.Slot.Load(ctx)
	if !ok || tok != "fresh" || !present || persisted != "fresh" {
		t.Fatalf("memory=%q(%v) persisted=%q(%v), want both fresh", tok, ok, persisted, present)
	}
	for {
		select {
		case e := <-events:
			if e.Kind == EventInvalidated {
				t.Fatal("unexpected invalidation of the newer session")
			}
		default:
			return
		}
	}
}

func TestStore_ExternalWriteIsNotAdopted(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := newTestStore(t, backend.Open())
	if err := s.Login(ctx, "mine"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	stop, err := s.Observe(ctx)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer stop()

	if err := backend.Open().Store(ctx, "theirs"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if tok, _ := s.CurrentToken(); tok != "mine" {
		t.Errorf("expected token unchanged, got %q", tok)
	}
}

func TestStore_ObserveTeardown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := NewMemoryBackend()
	s := newTestStore(t, backend.Open())

	stop, err := s.Observe(ctx)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	stop()
	stop()

	waitFor(t, func() bool {
		backend.mu.RLock()
		defer backend.mu.RUnlock()
		return len(backend.watchers) == 0
	})

	// Cancelling the parent after stop is harmless.
	cancel()

	if err := s.Login(context.Background(), "tok"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := backend.Open().Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if !s.IsAuthenticated() {
		t.Error("expected no reaction after teardown")
	}
}

func TestStore_ExpireOnlyCurrentToken(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryBackend().Open())
	if err := s.Login(ctx, "old"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := s.Login(ctx, "new"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := s.Expire(ctx, "old", "401"); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if tok, _ := s.CurrentToken(); tok != "new" {
		t.Fatalf("stale expiry ended current session, token %q", tok)
	}

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()
	if err := s.Expire(ctx, "new", "401"); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if s.IsAuthenticated() {
		t.Fatal("expected logged out after expiry")
	}
	if e := <-events; e.Kind != EventExpired || e.Reason != "401" {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestStore_ExpireClearsMemoryWhenSlotFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryBackend().Open())
	if err := s.Login(ctx, "tok"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	boom := errors.New("unreachable")
	s.slot = failingSlot{Slot: s.slot, err: boom}

	if err := s.Expire(ctx, "tok", "401"); !errors.Is(err, boom) {
		t.Fatalf("expected slot error, got %v", err)
	}
	if s.IsAuthenticated() {
		t.Fatal("expected memory cleared despite slot failure")
	}
}

func TestStore_GenerationAdvances(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryBackend().Open())
	g0 := s.Generation()
	_ = s.Login(ctx, "a")
	g1 := s.Generation()
	_ = s.Logout(ctx)
	g2 := s.Generation()
	if !(g0 < g1 && g1 < g2) {
		t.Errorf("expected strictly increasing generations, got %d %d %d", g0, g1, g2)
	}
}

func TestStore_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryBackend().Open())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if tok, ok := s.CurrentToken(); ok && tok != "tok" {
					t.Errorf("torn read %q", tok)
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		_ = s.Login(ctx, "tok")
		_ = s.Logout(ctx)
	}
	wg.Wait()
}

func TestStore_UnsubscribeClosesChannel(t *testing.T) {
	s := newTestStore(t, NewMemoryBackend().Open())
	events, unsubscribe := s.Subscribe()
	unsubscribe()
	unsubscribe()
	if _, ok := <-events; ok {
		t.Fatal("expected closed channel")
	}
	if err := s.Login(context.Background(), "tok"); err != nil {
		t.Fatalf("Login after unsubscribe: %v", err)
	}
}

func TestEventKind_String(t *testing.T) {
	tests := map[EventKind]string{
		EventLogin:       "login",
		EventLogout:      "logout",
		EventExpired:     "expired",
		EventInvalidated: "invalidated",
		EventKind(99):    "unknown",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}
