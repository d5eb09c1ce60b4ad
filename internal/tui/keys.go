package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up             key.Binding
	Down           key.Binding
	Select         key.Binding
	Expand         key.Binding
	NextPage       key.Binding
	PrevPage       key.Binding
	Search         key.Binding
	AgeBucket      key.Binding
	AddPatient     key.Binding
	Authorize      key.Binding
	Authorizations key.Binding
	Reload         key.Binding
	Dismiss        key.Binding
	Logout         key.Binding
	Back           key.Binding
	Quit           key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:             key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:           key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select:         key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Expand:         key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "expand")),
		NextPage:       key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n", "next page")),
		PrevPage:       key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p", "prev page")),
		Search:         key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		AgeBucket:      key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "age group")),
		AddPatient:     key.NewBinding(key.WithKeys("+", "a"), key.WithHelp("a", "add patient")),
		Authorize:      key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "authorize")),
		Authorizations: key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "requests")),
		Reload:         key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Dismiss:        key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss")),
		Logout:         key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "logout")),
		Back:           key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:           key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) listHelp() []key.Binding {
	return []key.Binding{k.Select, k.Expand, k.NextPage, k.PrevPage, k.Search, k.AgeBucket,
		k.AddPatient, k.Authorize, k.Authorizations, k.Logout, k.Quit}
}

func (k keyMap) authorizationsHelp() []key.Binding {
	return []key.Binding{k.Reload, k.Back, k.Quit}
}
