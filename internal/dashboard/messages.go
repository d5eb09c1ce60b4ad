package dashboard

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ehr/dashboard/internal/domain/authorization"
	"github.com/ehr/dashboard/internal/domain/patient"
	"github.com/ehr/dashboard/internal/platform/collection"
	"github.com/ehr/dashboard/internal/platform/session"
)

// --- Messages ---

// Every message produced by a remote call carries the session generation it
// was issued under. Update drops messages from an earlier generation.

type authResultMsg struct {
	op    string
	token string
	err   error
}

type patientsPageMsg struct {
	gen    uint64
	result collection.Result[patient.Patient]
}

type authorizationsMsg struct {
	gen    uint64
	result collection.Result[authorization.Request]
}

type detailMsg struct {
	gen     uint64
	version uint64
	id      string
	patient *patient.Patient
	err     error
}

type patientCreatedMsg struct {
	gen     uint64
	seq     uint64
	patient *patient.Patient
	err     error
}

type authorizationSubmittedMsg struct {
	gen     uint64
	seq     uint64
	request *authorization.Request
	err     error
}

type revokedMsg struct{ err error }

// SessionEventMsg delivers a session transition to the loop.
type SessionEventMsg struct{ Event session.Event }

// --- Commands ---

func (d *Dashboard) authenticate(op, username, password string) tea.Cmd {
	api, ctx := d.api, d.ctx
	return func() tea.Msg {
		var (
			token string
			err   error
		)
		if op == opRegister {
			token, err = api.Register(ctx, username, password)
		} else {
			token, err = api.Login(ctx, username, password)
		}
		return authResultMsg{op: op, token: token, err: err}
	}
}

func (d *Dashboard) runPatients(thunk func(context.Context) collection.Result[patient.Patient]) tea.Cmd {
	gen, ctx := d.session.Generation(), d.ctx
	return func() tea.Msg {
		return patientsPageMsg{gen: gen, result: thunk(ctx)}
	}
}

func (d *Dashboard) runAuthorizations(thunk func(context.Context) collection.Result[authorization.Request]) tea.Cmd {
	gen, ctx := d.session.Generation(), d.ctx
	return func() tea.Msg {
		return authorizationsMsg{gen: gen, result: thunk(ctx)}
	}
}

func (d *Dashboard) fetchDetail(id string, version uint64) tea.Cmd {
	gen, api, ctx := d.session.Generation(), d.api, d.ctx
	return func() tea.Msg {
		p, err := api.GetPatient(ctx, id)
		return detailMsg{gen: gen, version: version, id: id, patient: p, err: err}
	}
}

func (d *Dashboard) createPatient(seq uint64, draft patient.Draft) tea.Cmd {
	gen, api, ctx := d.session.Generation(), d.api, d.ctx
	return func() tea.Msg {
		p, err := api.CreatePatient(ctx, draft)
		return patientCreatedMsg{gen: gen, seq: seq, patient: p, err: err}
	}
}

func (d *Dashboard) submitAuthorization(seq uint64, sub authorization.Submission) tea.Cmd {
	gen, api, ctx := d.session.Generation(), d.api, d.ctx
	return func() tea.Msg {
		r, err := api.SubmitAuthorization(ctx, sub)
		return authorizationSubmittedMsg{gen: gen, seq: seq, request: r, err: err}
	}
}

func (d *Dashboard) revoke(token string) tea.Cmd {
	api, ctx := d.api, d.ctx
	return func() tea.Msg {
		return revokedMsg{err: api.RevokeToken(ctx, token)}
	}
}

// WaitForSession blocks until the next session event. Update re-arms it
// after every event; it returns nil once the subscription is closed.
func (d *Dashboard) WaitForSession() tea.Cmd {
	events := d.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return SessionEventMsg{Event: e}
	}
}
