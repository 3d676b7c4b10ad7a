package view

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/lipa/internal/payment"
	"github.com/MrJamesThe3rd/lipa/internal/reconcile"
)

const paymentsLimit = 200

type paymentsState int

const (
	paymentsStateBrowse paymentsState = iota
	paymentsStateConfirm
)

type confirmAction int

const (
	actionReconcileOne confirmAction = iota
	actionSweep
)

var stateFilters = []struct {
	label string
	state *payment.State
}{
	{"All", nil},
	{"Pending", new(payment.StatePending)},
	{"Succeeded", new(payment.StateSucceeded)},
	{"Failed", new(payment.StateFailed)},
	{"Cancelled", new(payment.StateCancelled)},
}

type PaymentsModel struct {
	CommonModel
	payments *payment.Service
	sweeper  *reconcile.Sweeper

	state  paymentsState
	table  table.Model
	txs    []*payment.Transaction
	form   *huh.Form
	action confirmAction

	filterIdx int
	loading   bool
	working   bool
	err       error
	status    string

	confirmed *bool
}

func NewPaymentsModel(payments *payment.Service, sweeper *reconcile.Sweeper) PaymentsModel {
	columns := []table.Column{
		{Title: "Created", Width: 17},
		{Title: "State", Width: 10},
		{Title: "Amount", Width: 10},
		{Title: "Phone", Width: 13},
		{Title: "Receipt", Width: 12},
		{Title: "Description", Width: 40},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return PaymentsModel{
		payments: payments,
		sweeper:  sweeper,
		table:    t,
		loading:  true,
	}
}

func (m PaymentsModel) Title() string { return "Payments" }
func (m PaymentsModel) ShortHelp() string {
	if m.state == paymentsStateConfirm {
		return "Confirm | Esc: cancel"
	}

	return "Esc: back | s: state filter | c: reconcile selected | w: sweep | r: refresh"
}

func (m PaymentsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m PaymentsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadPaymentsMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.err = nil
		m.txs = msg.txs
		m.refreshTable()

		return m, nil

	case reconcileDoneMsg:
		m.working = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.status = msg.summary
		}

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		m.table.SetHeight(msg.Height - 10)

		return m, nil
	}

	switch m.state {
	case paymentsStateBrowse:
		return m.updateBrowse(msg)
	case paymentsStateConfirm:
		return m.updateConfirm(msg)
	}

	return m, nil
}

func (m PaymentsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && !m.working {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			m.filterIdx = (m.filterIdx + 1) % len(stateFilters)
			m.loading = true

			return m, m.loadCmd()
		case "c":
			if m.selected() == nil {
				return m, nil
			}

			return m.enterConfirm(actionReconcileOne)
		case "w":
			return m.enterConfirm(actionSweep)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m PaymentsModel) enterConfirm(action confirmAction) (tea.Model, tea.Cmd) {
	title := "Run a reconciliation sweep now?"
	if action == actionReconcileOne {
		title = fmt.Sprintf("Reconcile payment %s with the provider?", m.selected().ID)
	}

	m.action = action
	m.confirmed = new(bool)
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(m.confirmed),
		),
	).WithWidth(50).WithShowHelp(false)

	m.state = paymentsStateConfirm
	m.table.Blur()

	return m, m.form.Init()
}

func (m PaymentsModel) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		return m.leaveConfirm(), nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	confirmed := *m.confirmed
	m = m.leaveConfirm()

	if !confirmed {
		return m, nil
	}

	m.working = true
	m.status = "Working..."

	if m.action == actionSweep {
		return m, m.sweepCmd()
	}

	return m, m.reconcileCmd(m.selected())
}

func (m PaymentsModel) leaveConfirm() PaymentsModel {
	m.state = paymentsStateBrowse
	m.form = nil
	m.table.Focus()

	return m
}

func (m PaymentsModel) selected() *payment.Transaction {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.txs) {
		return nil
	}

	return m.txs[idx]
}

func (m PaymentsModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading payments...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v\n\n(Esc to back)", m.err))
	}

	header := fmt.Sprintf("Filter: [s] State: %s | %d shown", activeStyle(stateFilters[m.filterIdx].label), len(m.txs))

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.state == paymentsStateConfirm && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(54).
			Render(m.form.View())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *PaymentsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.txs))
	for _, tx := range m.txs {
		rows = append(rows, table.Row{
			FormatTime(tx.CreatedAt),
			string(tx.State),
			FormatAmount(tx.Amount),
			tx.PayerPhone,
			deref(tx.ReceiptID),
			tx.Description,
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadPaymentsMsg struct {
	txs []*payment.Transaction
	err error
}

func (m PaymentsModel) loadCmd() tea.Cmd {
	filter := payment.ListFilter{State: stateFilters[m.filterIdx].state, Limit: paymentsLimit}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		txs, err := m.payments.List(ctx, filter)

		return loadPaymentsMsg{txs: txs, err: err}
	}
}

type reconcileDoneMsg struct {
	summary string
	err     error
}

func (m PaymentsModel) reconcileCmd(tx *payment.Transaction) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := gatewayCtx()
		defer cancel()

		result, err := m.sweeper.ReconcileOne(ctx, tx.ID)
		if err != nil {
			return reconcileDoneMsg{err: err}
		}

		return reconcileDoneMsg{summary: fmt.Sprintf("%s: %s", tx.ID, result)}
	}
}

func (m PaymentsModel) sweepCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := gatewayCtx()
		defer cancel()

		report, err := m.sweeper.Sweep(ctx)
		if err != nil {
			return reconcileDoneMsg{err: err}
		}

		return reconcileDoneMsg{summary: FormatReport(report)}
	}
}

// FormatReport renders a sweep report as "checked N: outcome=count ...".
func FormatReport(r reconcile.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "checked %d", r.Checked)

	for i, k := range slices.Sorted(maps.Keys(r.Outcomes)) {
		sep := ", "
		if i == 0 {
			sep = ": "
		}

		fmt.Fprintf(&b, "%s%s=%d", sep, k, r.Outcomes[k])
	}

	return b.String()
}
