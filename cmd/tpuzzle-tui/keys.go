package main

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Left      key.Binding
	Right     key.Binding
	FastUp    key.Binding
	FastDown  key.Binding
	FastLeft  key.Binding
	FastRight key.Binding
	NextLabel key.Binding
	PrevLabel key.Binding
	Place     key.Binding
	Grab      key.Binding
	Connect   key.Binding
	Discard   key.Binding
	Check     key.Binding
	Clear     key.Binding
	Reset     key.Binding
	Cancel    key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextLabel, k.Place, k.Grab, k.Connect, k.Check, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.FastUp, k.FastDown, k.FastLeft, k.FastRight},
		{k.NextLabel, k.PrevLabel, k.Place, k.Grab, k.Connect, k.Discard},
		{k.Check, k.Clear, k.Reset, k.Cancel, k.Help, k.Quit},
	}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		FastUp:    key.NewBinding(key.WithKeys("shift+up", "K"), key.WithHelp("K", "up x2")),
		FastDown:  key.NewBinding(key.WithKeys("shift+down", "J"), key.WithHelp("J", "down x2")),
		FastLeft:  key.NewBinding(key.WithKeys("shift+left", "H"), key.WithHelp("H", "left x5")),
		FastRight: key.NewBinding(key.WithKeys("shift+right", "L"), key.WithHelp("L", "right x5")),
		NextLabel: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next block")),
		PrevLabel: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev block")),
		Place:     key.NewBinding(key.WithKeys("enter", "p"), key.WithHelp("enter/p", "place")),
		Grab:      key.NewBinding(key.WithKeys("g", " "), key.WithHelp("g/space", "grab/drop")),
		Connect:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "connect")),
		Discard:   key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "discard")),
		Check:     key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "check")),
		Clear:     key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "clear stage")),
		Reset:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "start over")),
		Cancel:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}
