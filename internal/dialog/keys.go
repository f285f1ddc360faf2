package dialog

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dialog key bindings.
type KeyMap struct {
	Accept     key.Binding
	Reject     key.Binding
	Backup     key.Binding
	Copy       key.Binding
	Open       key.Binding
	ForceClose key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Accept: key.NewBinding(
			key.WithKeys("u", "enter"),
			key.WithHelp("u/⏎", "update now"),
		),
		Reject: key.NewBinding(
			key.WithKeys("s", "esc", "q"),
			key.WithHelp("s/esc", "skip"),
		),
		Backup: key.NewBinding(
			key.WithKeys("b", " "),
			key.WithHelp("b", "toggle backup"),
		),
		Copy: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "copy link"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open release page"),
		),
		ForceClose: key.NewBinding(
			key.WithKeys("ctrl+c"),
		),
	}
}

// ShortHelp lists the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Accept, k.Reject, k.Backup, k.Copy, k.Open}
}
