package main

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/lipa/cmd/console/internal/view"
	"github.com/MrJamesThe3rd/lipa/internal/app"
	"github.com/MrJamesThe3rd/lipa/internal/config"
)

type model struct {
	app *app.App

	currentView View

	paymentsView view.PaymentsModel
	invoiceView  view.InvoiceModel
}

type View int

const (
	ViewMenu     View = 0
	ViewPayments View = 1
	ViewInvoice  View = 2
)

func initialModel(a *app.App) model {
	return model{
		app:          a,
		currentView:  ViewMenu,
		paymentsView: view.NewPaymentsModel(a.Payments, a.Sweeper),
		invoiceView:  view.NewInvoiceModel(a.Invoices),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.currentView == ViewMenu {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewPayments
				m.paymentsView = view.NewPaymentsModel(m.app.Payments, m.app.Sweeper)

				return m, m.paymentsView.Init()
			case "2":
				m.currentView = ViewInvoice
				m.invoiceView = view.NewInvoiceModel(m.app.Invoices)

				return m, m.invoiceView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewPayments:
		var newModel tea.Model
		newModel, cmd = m.paymentsView.Update(msg)
		m.paymentsView = newModel.(view.PaymentsModel)
	case ViewInvoice:
		var newModel tea.Model
		newModel, cmd = m.invoiceView.Update(msg)
		m.invoiceView = newModel.(view.InvoiceModel)
	}

	return m, cmd
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).PaddingLeft(1)
	helpStyle  = lipgloss.NewStyle().Faint(true).PaddingLeft(1)
)

func (m model) active() view.View {
	switch m.currentView {
	case ViewPayments:
		return m.paymentsView
	case ViewInvoice:
		return m.invoiceView
	}

	return nil
}

func (m model) View() string {
	if m.currentView == ViewMenu {
		return lipgloss.NewStyle().Padding(2).Render(
			"Lipa Console\n\n" +
				"1. Payments\n" +
				"2. Invoice Lookup\n\n" +
				"q. Quit",
		)
	}

	v := m.active()
	if v == nil {
		return "Unknown View"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(v.Title()),
		v.View(),
		helpStyle.Render(v.ShortHelp()),
	)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	p := tea.NewProgram(initialModel(a), tea.WithAltScreen())
	_, err = p.Run()

	a.Close()

	if err != nil {
		slog.Error("failed to run console", "error", err)
		os.Exit(1)
	}
}
