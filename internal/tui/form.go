package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type field struct {
	label       string
	placeholder string
	secret      bool
}

// form is a vertical list of text inputs with one focused at a time.
type form struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

func newInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 256
	ti.Prompt = "> "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	ti.PlaceholderStyle = lipgloss.NewStyle().Foreground(ColorDim)
	ti.Cursor.SetMode(cursor.CursorStatic)
	return ti
}

func newForm(fields ...field) form {
	f := form{}
	for _, fd := range fields {
		ti := newInput(fd.placeholder)
		if fd.secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '*'
		}
		f.labels = append(f.labels, fd.label)
		f.inputs = append(f.inputs, ti)
	}
	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
	}
	return f
}

func (f *form) move(delta int) {
	if len(f.inputs) == 0 {
		return
	}
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + len(f.inputs)) % len(f.inputs)
	f.inputs[f.focus].Focus()
}

func (f form) update(msg tea.Msg) (form, tea.Cmd) {
	if len(f.inputs) == 0 {
		return f, nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

func (f form) value(i int) string {
	if i < 0 || i >= len(f.inputs) {
		return ""
	}
	return f.inputs[i].Value()
}

func (f form) view() string {
	var b strings.Builder
	for i, ti := range f.inputs {
		label := LabelStyle.Render(f.labels[i])
		if i == f.focus {
			label = LabelStyle.Foreground(ColorAccent).Render(f.labels[i])
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, label, ti.View()))
		b.WriteString("\n")
	}
	return b.String()
}

const (
	patientName = iota
	patientAge
	patientCondition
	patientHistory
	patientPlan
)

func newPatientForm() form {
	return newForm(
		field{label: "Name"},
		field{label: "Age"},
		field{label: "Condition"},
		field{label: "Medical history", placeholder: "comma separated"},
		field{label: "Treatment plan"},
	)
}

const (
	authTreatment = iota
	authPlan
	authDate
	authDiagnosis
	authNotes
)

func newAuthorizationForm() form {
	return newForm(
		field{label: "Treatment type"},
		field{label: "Insurance plan"},
		field{label: "Date of service", placeholder: "YYYY-MM-DD"},
		field{label: "Diagnosis code"},
		field{label: "Doctor notes", placeholder: "optional"},
	)
}

const (
	loginUsername = iota
	loginPassword
)

func newLoginForm() form {
	return newForm(
		field{label: "Username"},
		field{label: "Password", secret: true},
	)
}
