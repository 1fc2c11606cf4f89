package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up            key.Binding
	Down          key.Binding
	Next          key.Binding
	Prev          key.Binding
	Search        key.Binding
	Owned         key.Binding
	Invited       key.Binding
	Select        key.Binding
	SelectAll     key.Binding
	SelectMatches key.Binding
	Clear         key.Binding
	Detail        key.Binding
	Delete        key.Binding
	Refresh       key.Binding
	Dismiss       key.Binding
	Quit          key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:            key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:          key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Next:          key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n", "next page")),
		Prev:          key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p", "prev page")),
		Search:        key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Owned:         key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "owned")),
		Invited:       key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "invited")),
		Select:        key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "select")),
		SelectAll:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select page")),
		SelectMatches: key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "select matching")),
		Clear:         key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear selection")),
		Detail:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "detail")),
		Delete:        key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Refresh:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Dismiss:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "dismiss")),
		Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.Search, k.Owned, k.Invited, k.Select, k.Detail, k.Delete, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Next, k.Prev},
		{k.Search, k.Owned, k.Invited, k.Refresh},
		{k.Select, k.SelectAll, k.SelectMatches, k.Clear},
		{k.Detail, k.Delete, k.Dismiss, k.Quit},
	}
}
