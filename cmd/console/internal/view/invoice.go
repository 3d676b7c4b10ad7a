package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/lipa/internal/invoice"
)

type InvoiceModel struct {
	CommonModel
	invoices *invoice.Service

	idInput textinput.Model

	current *invoice.Invoice
	items   []*invoice.Item

	loading bool
	status  string
}

func NewInvoiceModel(invoices *invoice.Service) InvoiceModel {
	ti := textinput.New()
	ti.Placeholder = "invoice id"
	ti.Width = 40
	ti.CharLimit = 36
	ti.Focus()

	return InvoiceModel{
		invoices: invoices,
		idInput:  ti,
	}
}

func (m InvoiceModel) Title() string { return "Invoice Lookup" }
func (m InvoiceModel) ShortHelp() string {
	if m.current != nil {
		return "Esc: back | Enter: look up | t: recalculate totals"
	}

	return "Esc: back | Enter: look up"
}

func (m InvoiceModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m InvoiceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, Back
		case "enter":
			id, err := uuid.Parse(strings.TrimSpace(m.idInput.Value()))
			if err != nil {
				m.status = "Not a valid invoice id"
				return m, nil
			}

			m.loading = true

			return m, m.loadCmd(id)
		case "t":
			if m.current != nil && m.idInput.Value() == m.current.ID.String() {
				m.loading = true
				return m, m.recalculateCmd(m.current.ID)
			}
		}

	case loadInvoiceMsg:
		m.loading = false
		if msg.err != nil {
			m.current, m.items = nil, nil
			m.status = fmt.Sprintf("Error: %v", msg.err)

			return m, nil
		}

		m.current, m.items = msg.inv, msg.items
		m.status = ""

		return m, nil
	}

	m.idInput, cmd = m.idInput.Update(msg)

	return m, cmd
}

func (m InvoiceModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading invoice...")
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Invoice ID:\n%s\n\n", m.idInput.View())

	if m.status != "" {
		b.WriteString(m.status + "\n\n")
	}

	if inv := m.current; inv != nil {
		fmt.Fprintf(&b, "Number:   %s\n", inv.Number)
		fmt.Fprintf(&b, "Status:   %s\n", activeStyle(string(inv.Status)))
		fmt.Fprintf(&b, "Subtotal: %s\n", FormatAmount(inv.Subtotal))
		fmt.Fprintf(&b, "Tax rate: %s%%\n", inv.TaxRate.Shift(2).String())
		fmt.Fprintf(&b, "Total:    %s\n", FormatAmount(inv.TotalAmount))

		if inv.PaymentID != nil {
			fmt.Fprintf(&b, "Paid by:  %s\n", inv.PaymentID)
		}

		if inv.PaidAt != nil {
			fmt.Fprintf(&b, "Paid at:  %s\n", FormatTime(*inv.PaidAt))
		}

		if len(m.items) > 0 {
			b.WriteString("\nItems:\n")
			for _, it := range m.items {
				fmt.Fprintf(&b, "  %-30s %6s x %10s = %10s\n",
					it.Description, it.Quantity.String(), FormatAmount(it.UnitPrice), FormatAmount(it.TotalPrice))
			}
		}
	}

	return lipgloss.NewStyle().Padding(2).Render(b.String())
}

type loadInvoiceMsg struct {
	inv   *invoice.Invoice
	items []*invoice.Item
	err   error
}

func (m InvoiceModel) loadCmd(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		inv, err := m.invoices.Get(ctx, id)
		if err != nil {
			return loadInvoiceMsg{err: err}
		}

		items, err := m.invoices.Items(ctx, id)

		return loadInvoiceMsg{inv: inv, items: items, err: err}
	}
}

func (m InvoiceModel) recalculateCmd(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		inv, err := m.invoices.RecalculateTotals(ctx, id)
		if err != nil {
			return loadInvoiceMsg{err: err}
		}

		items, err := m.invoices.Items(ctx, id)

		return loadInvoiceMsg{inv: inv, items: items, err: err}
	}
}
