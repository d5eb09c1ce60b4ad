// Package dashboard is the event-loop model of the patient dashboard. It
// connects the session, the selection, the patient and authorization
// fetchers and the view coordinator to the remote API. Operations return
// bubbletea commands; their results come back through Update. Rendering is
// left to internal/tui.
package dashboard

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/ehr/dashboard/internal/domain/authorization"
	"github.com/ehr/dashboard/internal/domain/patient"
	"github.com/ehr/dashboard/internal/platform/apiclient"
	"github.com/ehr/dashboard/internal/platform/collection"
	"github.com/ehr/dashboard/internal/platform/coordinator"
	"github.com/ehr/dashboard/internal/platform/selection"
	"github.com/ehr/dashboard/internal/platform/session"
	"github.com/ehr/dashboard/internal/platform/telemetry"
)

const DefaultPageSize = 5

// User-facing texts.
const (
	MsgPatientAddFailed    = "Failed to add patient. Please try again."
	MsgAuthorizationSent   = "Authorization request submitted successfully"
	MsgAuthorizationFailed = "Failed to submit authorization request. Please try again."
	MsgDetailFailed        = "Failed to fetch patient details"
	MsgPatientsFailed      = "Failed to fetch patients"
	MsgAuthListFailed      = "Failed to fetch authorization requests"
	MsgLoginFailed         = "Invalid username or password"
	MsgRegisterFailed      = "Registration failed"
	MsgSessionExpired      = "Your session has expired. Please log in again."
	MsgSessionInvalidated  = "You were logged out from another window."
)

const (
	opLogin    = "login"
	opRegister = "register"
)

var ErrNoSelection = errors.New("no patient selected")

// API is the remote surface the dashboard uses. *apiclient.Client
// satisfies it.
type API interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, password string) (string, error)
	RevokeToken(ctx context.Context, token string) error
	ListPatients(ctx context.Context, page, limit int) ([]patient.Patient, int, error)
	GetPatient(ctx context.Context, id string) (*patient.Patient, error)
	CreatePatient(ctx context.Context, d patient.Draft) (*patient.Patient, error)
	SubmitAuthorization(ctx context.Context, s authorization.Submission) (*authorization.Request, error)
	ListAuthorizations(ctx context.Context) ([]authorization.Request, error)
}

type DetailStatus int

const (
	DetailIdle DetailStatus = iota
	DetailLoading
	DetailLoaded
	DetailFailed
)

func (s DetailStatus) String() string {
	switch s {
	case DetailLoading:
		return "loading"
	case DetailLoaded:
		return "loaded"
	case DetailFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Detail is the state of the patient detail panel.
type Detail struct {
	Status    DetailStatus
	PatientID string
	Patient   *patient.Patient
	Err       string
}

type Dashboard struct {
	ctx     context.Context
	api     API
	session *session.Store
	logger  zerolog.Logger

	selection      *selection.Store
	patients       *collection.Fetcher[patient.Patient]
	authorizations *collection.Fetcher[authorization.Request]
	coord          *coordinator.Coordinator

	pageSize int
	metrics  *telemetry.Metrics

	criteria patient.Criteria
	detail   Detail
	authErr  string
	authBusy bool

	// viewGen is the session generation the view state belongs to.
	viewGen uint64

	events      <-chan session.Event
	unsubscribe func()
}

type Option func(*Dashboard)

func WithPageSize(n int) Option {
	return func(d *Dashboard) {
		if n > 0 {
			d.pageSize = n
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dashboard) { d.metrics = m }
}

// New builds a dashboard over api and store. ctx bounds every remote call
// the dashboard starts. Call Close when done.
func New(ctx context.Context, api API, store *session.Store, logger zerolog.Logger, opts ...Option) *Dashboard {
	d := &Dashboard{
		ctx:       ctx,
		api:       api,
		session:   store,
		logger:    logger.With().Str("component", "dashboard").Logger(),
		selection: selection.New(),
		coord:     coordinator.New(),
		pageSize:  DefaultPageSize,
		criteria:  patient.Criteria{AgeBucket: patient.AgeAll},
	}
	for _, opt := range opts {
		opt(d)
	}

	d.patients = collection.New("patients", func(ctx context.Context, page, size int) (collection.Page[patient.Patient], error) {
		items, total, err := api.ListPatients(ctx, page, size)
		return collection.Page[patient.Patient]{Items: items, TotalPages: total}, err
	}, logger, collection.WithMetrics[patient.Patient](d.metrics))

	d.authorizations = collection.New("authorizations", func(ctx context.Context, _, _ int) (collection.Page[authorization.Request], error) {
		items, err := api.ListAuthorizations(ctx)
		return collection.Page[authorization.Request]{Items: items, TotalPages: 1}, err
	}, logger, collection.WithMetrics[authorization.Request](d.metrics))

	d.events, d.unsubscribe = store.Subscribe()
	d.viewGen = store.Generation()
	return d
}

// Init starts listening for session events and, when a credential is
// already present, loads the first page.
func (d *Dashboard) Init() tea.Cmd {
	if !d.session.IsAuthenticated() {
		return d.WaitForSession()
	}
	return tea.Batch(d.WaitForSession(), d.LoadPage(1))
}

// Close stops the session subscription.
func (d *Dashboard) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
}

func (d *Dashboard) Authenticated() bool { return d.session.IsAuthenticated() }

func (d *Dashboard) AuthError() string { return d.authErr }

func (d *Dashboard) AuthBusy() bool { return d.authBusy }

func (d *Dashboard) PageSize() int { return d.pageSize }

// Patients returns the loaded page.
func (d *Dashboard) Patients() collection.State[patient.Patient] { return d.patients.State() }

// Visible is the loaded page narrowed by the current filter criteria.
func (d *Dashboard) Visible() []patient.Patient {
	return patient.Filter(d.patients.State().Items, d.criteria)
}

func (d *Dashboard) Criteria() patient.Criteria { return d.criteria }

func (d *Dashboard) SetSearch(text string) { d.criteria.SearchText = text }

func (d *Dashboard) SetAgeBucket(b patient.AgeBucket) { d.criteria.AgeBucket = b }

func (d *Dashboard) Detail() Detail { return d.detail }

func (d *Dashboard) Selected() (string, bool) { return d.selection.Current() }

func (d *Dashboard) Surface() coordinator.Surface { return d.coord.Surface() }

func (d *Dashboard) IsExpanded(id string) bool { return d.coord.IsExpanded(id) }

// ToggleRow expands or collapses row id and returns its new state.
func (d *Dashboard) ToggleRow(id string) bool { return d.coord.Toggle(id) }

func (d *Dashboard) Notices() []coordinator.Notice { return d.coord.Notices() }

func (d *Dashboard) DismissNotices() { d.coord.DismissNotices() }

func (d *Dashboard) Authorizations() collection.State[authorization.Request] {
	return d.authorizations.State()
}

// --- Session ---

func (d *Dashboard) Login(username, password string) tea.Cmd {
	return d.startAuth(opLogin, username, password)
}

// Register creates an account and logs in with the returned token.
func (d *Dashboard) Register(username, password string) tea.Cmd {
	return d.startAuth(opRegister, username, password)
}

func (d *Dashboard) startAuth(op, username, password string) tea.Cmd {
	if d.authBusy {
		return nil
	}
	d.authBusy = true
	d.authErr = ""
	return d.authenticate(op, username, password)
}

// Logout ends the session locally and asks the server to revoke the token.
// The local logout does not wait for the server.
func (d *Dashboard) Logout() tea.Cmd {
	token, _ := d.session.CurrentToken()
	if err := d.session.Logout(d.ctx); err != nil {
		d.logger.Error().Err(err).Msg("logout")
		d.coord.Notify(coordinator.NoticeError, "Logout failed: "+err.Error())
		return nil
	}
	d.resetView()
	if token == "" {
		return nil
	}
	return d.revoke(token)
}

// --- Patients ---

// LoadPage requests page of the patient collection.
func (d *Dashboard) LoadPage(page int) tea.Cmd {
	thunk, err := d.patients.Load(page, d.pageSize)
	if err != nil {
		d.logger.Warn().Err(err).Int("page", page).Msg("load page")
		return nil
	}
	return d.runPatients(thunk)
}

func (d *Dashboard) NextPage() tea.Cmd {
	thunk, err := d.patients.Next()
	if err != nil {
		return nil
	}
	return d.runPatients(thunk)
}

func (d *Dashboard) PrevPage() tea.Cmd {
	thunk, err := d.patients.Prev()
	if err != nil {
		return nil
	}
	return d.runPatients(thunk)
}

// Reload fetches the current page again.
func (d *Dashboard) Reload() tea.Cmd {
	thunk, err := d.patients.Reload(d.pageSize)
	if err != nil {
		return nil
	}
	return d.runPatients(thunk)
}

// Select makes id the selected patient and loads its details. A detail
// result for an earlier selection is ignored when it arrives.
func (d *Dashboard) Select(id string) tea.Cmd {
	if id == "" {
		return nil
	}
	d.selection.Select(id)
	d.detail = Detail{Status: DetailLoading, PatientID: id}
	return d.fetchDetail(id, d.selection.Version())
}

// --- Surfaces ---

func (d *Dashboard) OpenAddPatient() error {
	_, err := d.coord.OpenAddPatient()
	return err
}

// OpenAuthorization opens the authorization form for the selected patient.
func (d *Dashboard) OpenAuthorization() error {
	id, ok := d.selection.Current()
	if !ok {
		return ErrNoSelection
	}
	_, err := d.coord.OpenAuthorization(id)
	return err
}

// Cancel closes the open surface.
func (d *Dashboard) Cancel() { d.coord.Cancel() }

// SubmitPatient submits the add-patient form. Invalid input is reported on
// the surface without a request being made.
func (d *Dashboard) SubmitPatient(form patient.Form) tea.Cmd {
	s := d.coord.Surface()
	if s.Kind != coordinator.SurfaceAddPatient {
		return nil
	}
	draft, err := form.Draft()
	if err != nil {
		d.coord.SubmitFailed(s.Seq, err.Error())
		return nil
	}
	if err := d.coord.BeginSubmit(s.Seq); err != nil {
		return nil
	}
	return d.createPatient(s.Seq, draft)
}

// SubmitAuthorization submits the authorization form for the patient the
// surface was opened on.
func (d *Dashboard) SubmitAuthorization(form authorization.Form) tea.Cmd {
	s := d.coord.Surface()
	if s.Kind != coordinator.SurfaceAuthorization {
		return nil
	}
	sub := form.Submission(s.PatientID)
	if err := sub.Validate(); err != nil {
		d.coord.SubmitFailed(s.Seq, err.Error())
		return nil
	}
	if err := d.coord.BeginSubmit(s.Seq); err != nil {
		return nil
	}
	return d.submitAuthorization(s.Seq, sub)
}

// LoadAuthorizations refreshes the authorization request list.
func (d *Dashboard) LoadAuthorizations() tea.Cmd {
	thunk, err := d.authorizations.Load(1, 1)
	if err != nil {
		return nil
	}
	return d.runAuthorizations(thunk)
}

// --- Update ---

// Update applies a message produced by one of the dashboard's commands and
// returns any follow-up command. Messages it does not know are ignored.
func (d *Dashboard) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case SessionEventMsg:
		d.applySession(msg.Event)
		return d.WaitForSession()

	case authResultMsg:
		d.authBusy = false
		if msg.err != nil {
			d.authErr = authFailureText(msg.op, msg.err)
			return nil
		}
		if err := d.session.Login(d.ctx, msg.token); err != nil {
			d.logger.Error().Err(err).Msg("store credential")
			d.authErr = "Could not save credential: " + err.Error()
			return nil
		}
		d.resetView()
		return d.LoadPage(1)

	case patientsPageMsg:
		if d.stale(msg.gen) {
			return nil
		}
		switch d.patients.Commit(msg.result) {
		case collection.OutOfRange:
			return d.LoadPage(d.patients.State().PageNumber)
		case collection.Failed:
			d.notifyFailure(msg.result.Err, MsgPatientsFailed)
		}
		return nil

	case authorizationsMsg:
		if d.stale(msg.gen) {
			return nil
		}
		if d.authorizations.Commit(msg.result) == collection.Failed {
			d.notifyFailure(msg.result.Err, MsgAuthListFailed)
		}
		return nil

	case detailMsg:
		if d.stale(msg.gen) || msg.version != d.selection.Version() {
			return nil
		}
		if msg.err != nil {
			d.detail = Detail{Status: DetailFailed, PatientID: msg.id, Err: MsgDetailFailed}
			return nil
		}
		d.detail = Detail{Status: DetailLoaded, PatientID: msg.id, Patient: msg.patient}
		return nil

	case patientCreatedMsg:
		if d.stale(msg.gen) {
			return nil
		}
		if msg.err != nil {
			d.coord.SubmitFailed(msg.seq, MsgPatientAddFailed)
			return nil
		}
		created := *msg.patient
		d.coord.PatientCreated(msg.seq, func() { d.patients.AppendLocal(created) })
		return nil

	case authorizationSubmittedMsg:
		if d.stale(msg.gen) {
			return nil
		}
		if msg.err != nil {
			d.coord.SubmitFailed(msg.seq, MsgAuthorizationFailed)
			return nil
		}
		d.coord.AuthorizationSubmitted(msg.seq, MsgAuthorizationSent)
		if d.authorizations.State().Loaded() {
			d.authorizations.AppendLocal(*msg.request)
		}
		return nil

	case revokedMsg:
		if msg.err != nil {
			d.logger.Debug().Err(msg.err).Msg("server-side revoke failed")
		}
		return nil
	}
	return nil
}

// stale reports whether a result issued under gen belongs to an earlier
// session. It also brings the view in line with the session, since a stale
// result usually means the credential was rejected while it was in flight.
func (d *Dashboard) stale(gen uint64) bool {
	current := d.session.Generation()
	if gen == current {
		return false
	}
	if d.viewGen != current {
		d.viewGen = current
		if !d.session.IsAuthenticated() {
			d.resetView()
		}
	}
	return true
}

func (d *Dashboard) applySession(e session.Event) {
	d.viewGen = d.session.Generation()
	if d.session.IsAuthenticated() {
		return
	}
	d.resetView()
	if e.Generation != d.viewGen {
		return
	}
	switch e.Kind {
	case session.EventExpired:
		d.coord.Notify(coordinator.NoticeError, MsgSessionExpired)
	case session.EventInvalidated:
		d.coord.Notify(coordinator.NoticeError, MsgSessionInvalidated)
	}
}

// resetView drops everything that belonged to the previous session.
func (d *Dashboard) resetView() {
	d.viewGen = d.session.Generation()
	d.selection.Clear()
	d.patients.Reset()
	d.authorizations.Reset()
	d.coord.Reset()
	d.detail = Detail{}
	d.criteria = patient.Criteria{AgeBucket: patient.AgeAll}
}

// notifyFailure reports a failed fetch unless the failure was the missing
// credential, which the logged-out view already shows.
func (d *Dashboard) notifyFailure(err error, text string) {
	if apiclient.IsLoggedOut(err) {
		return
	}
	d.coord.Notify(coordinator.NoticeError, text)
}

func authFailureText(op string, err error) string {
	if apiclient.KindOf(err) != apiclient.KindAuthentication {
		return err.Error()
	}
	var apiErr *apiclient.Error
	if op == opRegister {
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return MsgRegisterFailed + ": " + apiErr.Message
		}
		return MsgRegisterFailed
	}
	return MsgLoginFailed
}
