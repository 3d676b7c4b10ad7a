package view

import (
	tea "github.com/charmbracelet/bubbletea"
)

// View is a console screen. The menu frames it with Title above and ShortHelp below.
type View interface {
	tea.Model
	Title() string
	ShortHelp() string
}

// CommonModel carries the terminal size last seen by a screen.
type CommonModel struct {
	Width  int
	Height int
}

type BackMsg struct{}

func Back() tea.Msg {
	return BackMsg{}
}
