// Package coordinator tracks the dashboard's transient view state: the one
// open modal surface, the set of expanded rows, and user-facing notices. It
// ties asynchronous submission results back to the surface that started them.
package coordinator

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrSurfaceBusy    = errors.New("another surface is already open")
	ErrMissingID      = errors.New("authorization surface requires a patient id")
	ErrStaleSurface   = errors.New("surface is no longer open")
	ErrSubmitInFlight = errors.New("submission already in progress")
)

type SurfaceKind int

const (
	SurfaceNone SurfaceKind = iota
	SurfaceAddPatient
	SurfaceAuthorization
)

func (k SurfaceKind) String() string {
	switch k {
	case SurfaceAddPatient:
		return "add-patient"
	case SurfaceAuthorization:
		return "authorization"
	default:
		return "none"
	}
}

// Surface is the open modal. Seq is unique per opening, so a completion for
// a surface that was closed and reopened does not touch the new one.
type Surface struct {
	Kind       SurfaceKind
	PatientID  string
	Seq        uint64
	Submitting bool
	Err        string
}

func (s Surface) Open() bool { return s.Kind != SurfaceNone }

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

type Notice struct {
	Level NoticeLevel
	Text  string
	At    time.Time
}

type Coordinator struct {
	mu       sync.Mutex
	surface  Surface
	seq      uint64
	expanded map[string]bool
	notices  []Notice
	now      func() time.Time
}

func New() *Coordinator {
	return &Coordinator{expanded: make(map[string]bool), now: time.Now}
}

// Surface returns the current surface. Kind is SurfaceNone when nothing is open.
func (c *Coordinator) Surface() Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface
}

func (c *Coordinator) OpenAddPatient() (Surface, error) {
	return c.open(Surface{Kind: SurfaceAddPatient})
}

// OpenAuthorization opens the authorization form for patientID.
func (c *Coordinator) OpenAuthorization(patientID string) (Surface, error) {
	if patientID == "" {
		return Surface{}, ErrMissingID
	}
	return c.open(Surface{Kind: SurfaceAuthorization, PatientID: patientID})
}

func (c *Coordinator) open(s Surface) (Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface.Open() {
		return c.surface, ErrSurfaceBusy
	}
	c.seq++
	s.Seq = c.seq
	c.surface = s
	return s, nil
}

// Cancel closes whatever is open. It always succeeds, also while a
// submission is in flight; that submission's completion is then treated as
// stale.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface = Surface{}
}

// BeginSubmit marks surface seq as submitting. A second submit while the
// first is outstanding is refused.
func (c *Coordinator) BeginSubmit(seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.surface.Open() || c.surface.Seq != seq {
		return ErrStaleSurface
	}
	if c.surface.Submitting {
		return ErrSubmitInFlight
	}
	c.surface.Submitting = true
	c.surface.Err = ""
	return nil
}

// closeIfCurrent reports whether seq was the open surface and closed it.
func (c *Coordinator) closeIfCurrent(seq uint64) bool {
	if !c.surface.Open() || c.surface.Seq != seq {
		return false
	}
	c.surface = Surface{}
	return true
}

// PatientCreated closes the add-patient surface seq, then runs appendLocal.
// The patient exists remotely either way, so appendLocal runs even when the
// surface was already cancelled. It reports whether the surface was closed.
func (c *Coordinator) PatientCreated(seq uint64, appendLocal func()) bool {
	c.mu.Lock()
	closed := c.closeIfCurrent(seq)
	c.mu.Unlock()

	if appendLocal != nil {
		appendLocal()
	}
	return closed
}

// AuthorizationSubmitted closes surface seq and records confirmation. The
// page state is left alone.
func (c *Coordinator) AuthorizationSubmitted(seq uint64, confirmation string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	closed := c.closeIfCurrent(seq)
	c.noticeLocked(NoticeInfo, confirmation)
	return closed
}

// SubmitFailed keeps surface seq open with message so the user can retry or
// cancel. If the surface is gone the message becomes an error notice.
func (c *Coordinator) SubmitFailed(seq uint64, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface.Open() && c.surface.Seq == seq {
		c.surface.Submitting = false
		c.surface.Err = message
		return
	}
	c.noticeLocked(NoticeError, message)
}

// Toggle flips whether row id is expanded and returns the new state.
func (c *Coordinator) Toggle(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expanded[id] {
		delete(c.expanded, id)
		return false
	}
	c.expanded[id] = true
	return true
}

func (c *Coordinator) IsExpanded(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expanded[id]
}

// Expanded returns the expanded ids in sorted order.
func (c *Coordinator) Expanded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.expanded))
	for id := range c.expanded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Coordinator) Notify(level NoticeLevel, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noticeLocked(level, text)
}

func (c *Coordinator) noticeLocked(level NoticeLevel, text string) {
	if text == "" {
		return
	}
	c.notices = append(c.notices, Notice{Level: level, Text: text, At: c.now()})
}

// Notices returns pending notices, oldest first.
func (c *Coordinator) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}

// DismissNotices drops all pending notices.
func (c *Coordinator) DismissNotices() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = nil
}

// Reset returns to the initial state, keeping the surface sequence so that
// completions from before the reset stay stale.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface = Surface{}
	c.expanded = make(map[string]bool)
	c.notices = nil
}
