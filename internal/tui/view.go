package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ehr/dashboard/internal/dashboard"
	"github.com/ehr/dashboard/internal/domain/patient"
	"github.com/ehr/dashboard/internal/platform/coordinator"
)

func (m Model) View() string {
	if !m.d.Authenticated() {
		return m.viewLogin()
	}

	var body string
	switch {
	case m.d.Surface().Open():
		body = m.viewSurface()
	case m.screen == screenAuthorizations:
		body = m.viewAuthorizations()
	default:
		body = m.viewPatients()
	}

	parts := []string{TitleStyle.Render("Patient Dashboard"), body}
	if notices := m.viewNotices(); notices != "" {
		parts = append(parts, notices)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) viewLogin() string {
	title := "Login"
	hint := "enter: log in  ctrl+r: register instead  esc: quit"
	if m.register {
		title = "Register"
		hint = "enter: register  ctrl+r: log in instead  esc: quit"
	}

	lines := []string{TitleStyle.Render(title), "", m.login.view()}
	if m.d.AuthBusy() {
		lines = append(lines, MutedStyle.Render("Signing in..."))
	}
	if msg := m.d.AuthError(); msg != "" {
		lines = append(lines, ErrorStyle.Render(msg))
	}
	if notices := m.viewNotices(); notices != "" {
		lines = append(lines, notices)
	}
	lines = append(lines, MutedStyle.Render(hint))
	return PanelStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) viewPatients() string {
	var b strings.Builder
	state := m.d.Patients()
	crit := m.d.Criteria()

	filter := "Age: " + crit.AgeBucket.Label()
	if m.searching {
		filter = m.search.View() + "   " + filter
	} else if crit.SearchText != "" {
		filter = fmt.Sprintf("Search: %q   %s", crit.SearchText, filter)
	}
	b.WriteString(MutedStyle.Render(filter))
	b.WriteString("\n\n")

	visible := m.d.Visible()
	switch {
	case !state.Loaded() && state.Loading:
		b.WriteString(MutedStyle.Render("Loading patients..."))
		b.WriteString("\n")
	case len(visible) == 0:
		b.WriteString(MutedStyle.Render("No patients on this page match the filter."))
		b.WriteString("\n")
	}

	selected, _ := m.d.Selected()
	for i, p := range visible {
		row := fmt.Sprintf("%-10s %-24s %3d  %s", truncate(p.ID, 10), truncate(p.Name, 24), p.Age, p.Condition)
		marker := "  "
		if p.ID == selected {
			marker = "* "
		}
		if i == m.cursor {
			row = SelectedStyle.Render(row)
		}
		b.WriteString(marker + row + "\n")
		if m.d.IsExpanded(p.ID) {
			b.WriteString(MutedStyle.Render(expandedRow(p)))
			b.WriteString("\n")
		}
	}

	page := "Page -"
	if state.Loaded() {
		page = fmt.Sprintf("Page %d of %d", state.PageNumber, state.TotalPages)
	}
	if state.Loading && state.Loaded() {
		page += "  loading..."
	}
	b.WriteString("\n" + MutedStyle.Render(page) + "\n")

	if detail := m.viewDetail(); detail != "" {
		b.WriteString(detail + "\n")
	}
	b.WriteString(m.help.ShortHelpView(m.keys.listHelp()))
	return b.String()
}

func expandedRow(p patient.Patient) string {
	return fmt.Sprintf("    History: %s\n    Plan: %s", strings.Join(p.MedicalHistory, ", "), p.TreatmentPlan)
}

func (m Model) viewDetail() string {
	det := m.d.Detail()
	switch det.Status {
	case dashboard.DetailLoading:
		return PanelStyle.Render(MutedStyle.Render("Loading patient details..."))
	case dashboard.DetailFailed:
		return PanelStyle.Render(ErrorStyle.Render(det.Err))
	case dashboard.DetailLoaded:
		p := det.Patient
		rows := []string{
			TitleStyle.Render(p.Name),
			LabelStyle.Render("Age") + fmt.Sprint(p.Age),
			LabelStyle.Render("Condition") + p.Condition,
			LabelStyle.Render("Medical history") + strings.Join(p.MedicalHistory, ", "),
			LabelStyle.Render("Treatment plan") + p.TreatmentPlan,
		}
		return PanelStyle.Render(strings.Join(rows, "\n"))
	default:
		return ""
	}
}

func (m Model) viewSurface() string {
	s := m.d.Surface()
	var title string
	var f form
	switch s.Kind {
	case coordinator.SurfaceAuthorization:
		title = "Authorization request for " + s.PatientID
		f = m.authForm
	default:
		title = "Add patient"
		f = m.patientForm
	}

	lines := []string{TitleStyle.Render(title), "", f.view()}
	if s.Submitting {
		lines = append(lines, MutedStyle.Render("Submitting..."))
	}
	if s.Err != "" {
		lines = append(lines, ErrorStyle.Render(s.Err))
	}
	lines = append(lines, MutedStyle.Render("tab: next field  enter: submit  esc: cancel"))
	return ModalStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) viewAuthorizations() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("All Authorization Requests"))
	b.WriteString("\n\n")

	state := m.d.Authorizations()
	switch {
	case state.Loading:
		b.WriteString(MutedStyle.Render("Loading..."))
		b.WriteString("\n")
	case len(state.Items) == 0:
		b.WriteString(MutedStyle.Render("No authorization requests."))
		b.WriteString("\n")
	}

	for _, r := range state.Items {
		status := statusStyle(string(r.Status)).Render(string(r.Status))
		lines := []string{
			fmt.Sprintf("%s  [%s]", r.TreatmentType, status),
			LabelStyle.Render("Patient") + r.PatientID,
			LabelStyle.Render("Insurance plan") + r.InsurancePlan,
			LabelStyle.Render("Date of service") + r.DateOfService,
			LabelStyle.Render("Diagnosis code") + r.DiagnosisCode,
		}
		if r.DoctorNotes != "" {
			lines = append(lines, LabelStyle.Render("Doctor's notes")+r.DoctorNotes)
		}
		if !r.CreatedAt.IsZero() {
			lines = append(lines, MutedStyle.Render("Submitted on: "+r.CreatedAt.Local().Format("2006-01-02 15:04")))
		}
		b.WriteString(PanelStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView(m.keys.authorizationsHelp()))
	return b.String()
}

func (m Model) viewNotices() string {
	notices := m.d.Notices()
	if len(notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(notices))
	for _, n := range notices {
		if n.Level == coordinator.NoticeError {
			lines = append(lines, ErrorStyle.Render(n.Text))
		} else {
			lines = append(lines, SuccessStyle.Render(n.Text))
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
