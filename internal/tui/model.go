// Package tui renders the dashboard in the terminal.
package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ehr/dashboard/internal/dashboard"
	"github.com/ehr/dashboard/internal/domain/authorization"
	"github.com/ehr/dashboard/internal/domain/patient"
	"github.com/ehr/dashboard/internal/platform/coordinator"
)

type screen int

const (
	screenPatients screen = iota
	screenAuthorizations
)

// Model is the bubbletea model. All state that matters lives in the
// dashboard; the model only adds cursor position, focus and form contents.
type Model struct {
	d    *dashboard.Dashboard
	keys keyMap
	help help.Model

	screen    screen
	cursor    int
	searching bool
	search    textinput.Model

	login    form
	register bool

	patientForm form
	authForm    form

	// authed is the authentication state last seen, to notice logouts
	// that happened off the loop.
	authed bool

	width  int
	height int
}

func New(d *dashboard.Dashboard) Model {
	search := newInput("search by name")
	search.Prompt = "/ "
	return Model{
		d:      d,
		keys:   defaultKeys(),
		help:   help.New(),
		search: search,
		login:  newLoginForm(),
		authed: d.Authenticated(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.d.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch {
		case !m.d.Authenticated():
			return m.updateLogin(msg)
		case m.d.Surface().Open():
			return m.updateSurface(msg)
		case m.searching:
			return m.updateSearch(msg)
		case m.screen == screenAuthorizations:
			return m.updateAuthorizations(msg)
		default:
			return m.updatePatients(msg)
		}
	}

	cmd := m.d.Update(msg)
	if m.authed && !m.d.Authenticated() {
		m = m.loggedOut()
	}
	m.authed = m.d.Authenticated()
	return m, cmd
}

func (m Model) loggedOut() Model {
	m.screen = screenPatients
	m.cursor = 0
	m.searching = false
	m.search.SetValue("")
	m.search.Blur()
	m.login = newLoginForm()
	m.register = false
	m.authed = false
	return m
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		m.login.move(1)
		return m, nil
	case "shift+tab", "up":
		m.login.move(-1)
		return m, nil
	case "ctrl+r":
		m.register = !m.register
		return m, nil
	case "esc":
		return m, tea.Quit
	case "enter":
		user, pass := m.login.value(loginUsername), m.login.value(loginPassword)
		if user == "" || pass == "" {
			return m, nil
		}
		if m.register {
			return m, m.d.Register(user, pass)
		}
		return m, m.d.Login(user, pass)
	}
	var cmd tea.Cmd
	m.login, cmd = m.login.update(msg)
	return m, cmd
}

func (m Model) updatePatients(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := m.d.Visible()
	current := func() (patient.Patient, bool) {
		if m.cursor < 0 || m.cursor >= len(visible) {
			return patient.Patient{}, false
		}
		return visible[m.cursor], true
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(visible)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Select):
		if p, ok := current(); ok {
			return m, m.d.Select(p.ID)
		}
	case key.Matches(msg, m.keys.Expand):
		if p, ok := current(); ok {
			m.d.ToggleRow(p.ID)
		}
	case key.Matches(msg, m.keys.NextPage):
		m.cursor = 0
		return m, m.d.NextPage()
	case key.Matches(msg, m.keys.PrevPage):
		m.cursor = 0
		return m, m.d.PrevPage()
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.search.Focus()
	case key.Matches(msg, m.keys.AgeBucket):
		m.d.SetAgeBucket(nextBucket(m.d.Criteria().AgeBucket))
		m.cursor = 0
	case key.Matches(msg, m.keys.AddPatient):
		if err := m.d.OpenAddPatient(); err == nil {
			m.patientForm = newPatientForm()
		}
	case key.Matches(msg, m.keys.Authorize):
		if err := m.d.OpenAuthorization(); err == nil {
			m.authForm = newAuthorizationForm()
		}
	case key.Matches(msg, m.keys.Authorizations):
		m.screen = screenAuthorizations
		return m, m.d.LoadAuthorizations()
	case key.Matches(msg, m.keys.Reload):
		return m, m.d.Reload()
	case key.Matches(msg, m.keys.Dismiss):
		m.d.DismissNotices()
	case key.Matches(msg, m.keys.Logout):
		cmd := m.d.Logout()
		return m.loggedOut(), cmd
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search.SetValue("")
		m.d.SetSearch("")
		fallthrough
	case "enter":
		m.searching = false
		m.search.Blur()
		m.cursor = 0
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.d.SetSearch(m.search.Value())
	m.cursor = 0
	return m, cmd
}

func (m Model) updateSurface(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.d.Surface()
	f := &m.patientForm
	if s.Kind == coordinator.SurfaceAuthorization {
		f = &m.authForm
	}

	switch msg.String() {
	case "esc":
		m.d.Cancel()
		return m, nil
	case "tab", "down":
		f.move(1)
		return m, nil
	case "shift+tab", "up":
		f.move(-1)
		return m, nil
	case "enter":
		if s.Kind == coordinator.SurfaceAuthorization {
			return m, m.d.SubmitAuthorization(authorizationFormValues(m.authForm))
		}
		return m, m.d.SubmitPatient(patientFormValues(m.patientForm))
	}

	var cmd tea.Cmd
	*f, cmd = f.update(msg)
	return m, cmd
}

func (m Model) updateAuthorizations(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Back):
		m.screen = screenPatients
	case key.Matches(msg, m.keys.Reload):
		return m, m.d.LoadAuthorizations()
	case key.Matches(msg, m.keys.Dismiss):
		m.d.DismissNotices()
	}
	return m, nil
}

func patientFormValues(f form) patient.Form {
	return patient.Form{
		Name:           f.value(patientName),
		Age:            f.value(patientAge),
		Condition:      f.value(patientCondition),
		MedicalHistory: f.value(patientHistory),
		TreatmentPlan:  f.value(patientPlan),
	}
}

func authorizationFormValues(f form) authorization.Form {
	return authorization.Form{
		TreatmentType: f.value(authTreatment),
		InsurancePlan: f.value(authPlan),
		DateOfService: f.value(authDate),
		DiagnosisCode: f.value(authDiagnosis),
		DoctorNotes:   f.value(authNotes),
	}
}

func nextBucket(b patient.AgeBucket) patient.AgeBucket {
	for i, candidate := range patient.AgeBuckets {
		if candidate == b {
			return patient.AgeBuckets[(i+1)%len(patient.AgeBuckets)]
		}
	}
	return patient.AgeAll
}

// Run drives the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, d *dashboard.Dashboard, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(New(d), opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
