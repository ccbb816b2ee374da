// Package tui is the read-only terminal dashboard: live views over
// the watchlist, open positions, risk state, and the event stream.
// It renders snapshots only and issues no commands beyond quitting;
// trading control lives on the HTTP surface.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"memecore/internal/events"
	"memecore/internal/position"
	"memecore/internal/risk"
	"memecore/internal/watchlist"
)

const maxLogLines = 200

type tab int

const (
	tabPositions tab = iota
	tabWatchlist
	tabRisk
	tabEvents
	tabCount
)

func (t tab) String() string {
	switch t {
	case tabPositions:
		return "Positions"
	case tabWatchlist:
		return "Watchlist"
	case tabRisk:
		return "Risk"
	default:
		return "Events"
	}
}

type keymap struct {
	quit  key.Binding
	next  key.Binding
	theme key.Binding
}

var keys = keymap{
	quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	next:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
	theme: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "theme")),
}

type tickMsg time.Time

type busMsg struct{ event any }

// Model is the bubbletea model over the core's read surfaces.
type Model struct {
	watchlist *watchlist.Watchlist
	positions *position.Tracker
	riskState *risk.State
	busCh     <-chan any

	active   tab
	themeIdx int
	st       styles
	width    int
	height   int

	logLines []string
}

// New builds the dashboard model. busCh should be an events.Bus
// subscription owned by the TUI.
func New(wl *watchlist.Watchlist, positions *position.Tracker, riskState *risk.State, busCh <-chan any) Model {
	return Model{
		watchlist: wl,
		positions: positions,
		riskState: riskState,
		busCh:     busCh,
		st:        buildStyles(themes[0]),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.waitForEvent())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.busCh
		if !ok {
			return nil
		}
		return busMsg{event: ev}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tickMsg:
		return m, tick()
	case busMsg:
		if line := formatEvent(msg.event); line != "" {
			m.logLines = append(m.logLines, line)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
		}
		return m, m.waitForEvent()
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.quit):
			return m, tea.Quit
		case key.Matches(msg, keys.next):
			m.active = (m.active + 1) % tabCount
		case key.Matches(msg, keys.theme):
			m.themeIdx = (m.themeIdx + 1) % len(themes)
			m.st = buildStyles(themes[m.themeIdx])
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.st.title.Render("memecore"))
	b.WriteString("  ")
	for t := tab(0); t < tabCount; t++ {
		style := m.st.tab
		if t == m.active {
			style = m.st.tabOn
		}
		b.WriteString(style.Render(t.String()))
	}
	b.WriteString("\n")

	var body string
	switch m.active {
	case tabPositions:
		body = m.viewPositions()
	case tabWatchlist:
		body = m.viewWatchlist()
	case tabRisk:
		body = m.viewRisk()
	default:
		body = m.viewEvents()
	}
	b.WriteString(m.st.frame.Render(body))
	b.WriteString("\n")
	b.WriteString(m.st.muted.Render("tab: switch  t: theme  q: quit"))
	return b.String()
}

func (m Model) viewPositions() string {
	snaps := m.positions.Snapshots()
	if len(snaps) == 0 {
		return m.st.muted.Render("no open positions")
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].EntryTime < snaps[j].EntryTime })

	var b strings.Builder
	b.WriteString(m.st.header.Render(padRow("SYMBOL", "MINT", "SIZE", "LAST", "PNL%", "REMAIN", "STATUS")))
	b.WriteString("\n")
	for _, p := range snaps {
		pnlStyle := m.st.profit
		if p.UnrealizedPnLPct < 0 {
			pnlStyle = m.st.loss
		}
		row := padRow(
			p.Symbol,
			p.Mint.Short(),
			fmt.Sprintf("%.3f", p.SizeSOL),
			fmt.Sprintf("%.8f", p.LastPrice),
			pnlStyle.Render(fmt.Sprintf("%+.1f", p.UnrealizedPnLPct)),
			fmt.Sprintf("%.0f%%", p.RemainingFraction*100),
			p.Status.String(),
		)
		b.WriteString(m.st.text.Render(row))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewWatchlist() string {
	return m.st.text.Render(fmt.Sprintf("tracking %d tokens", m.watchlist.Count()))
}

func (m Model) viewRisk() string {
	s := m.riskState.Snapshot()

	var b strings.Builder
	status := m.st.profit.Render("TRADING")
	if s.Paused {
		status = m.st.loss.Render("PAUSED: " + s.PauseReason)
	}
	b.WriteString(status)
	b.WriteString("\n\n")

	pnlStyle := m.st.profit
	if s.DailyPnLSOL < 0 {
		pnlStyle = m.st.loss
	}
	fmt.Fprintf(&b, "%s %s\n", m.st.muted.Render("daily pnl:"), pnlStyle.Render(fmt.Sprintf("%+.4f SOL", s.DailyPnLSOL)))
	fmt.Fprintf(&b, "%s %.4f SOL\n", m.st.muted.Render("high water:"), s.HighWaterMarkSOL)
	fmt.Fprintf(&b, "%s %.1f%%\n", m.st.muted.Render("drawdown:"), s.CurrentDrawdown*100)
	fmt.Fprintf(&b, "%s %d\n", m.st.muted.Render("loss streak:"), s.ConsecutiveLosses)
	fmt.Fprintf(&b, "%s %d\n", m.st.muted.Render("open positions:"), s.OpenPositions)
	return b.String()
}

func (m Model) viewEvents() string {
	if len(m.logLines) == 0 {
		return m.st.muted.Render("waiting for events…")
	}
	visible := 20
	if m.height > 12 {
		visible = m.height - 8
	}
	start := len(m.logLines) - visible
	if start < 0 {
		start = 0
	}
	return m.st.text.Render(strings.Join(m.logLines[start:], "\n"))
}

var colWidths = []int{10, 12, 8, 14, 8, 8, 8}

func padRow(cols ...string) string {
	var b strings.Builder
	for i, c := range cols {
		w := 12
		if i < len(colWidths) {
			w = colWidths[i]
		}
		b.WriteString(runewidth.FillRight(runewidth.Truncate(c, w, "…"), w+1))
	}
	return b.String()
}

func formatEvent(ev any) string {
	ts := func(at interface{ Time() time.Time }) string {
		return at.Time().Format("15:04:05")
	}
	switch e := ev.(type) {
	case events.TokenDiscovered:
		return fmt.Sprintf("%s  discovered %s (%s)", ts(e.At), e.Symbol, e.Mint.Short())
	case events.DevSold:
		return fmt.Sprintf("%s  DEV SOLD %s (%.0f%%)", ts(e.At), e.Mint.Short(), e.SoldPercent*100)
	case events.TradeDecision:
		verdict := "reject"
		if e.Approve {
			verdict = fmt.Sprintf("APPROVE %.3f SOL", e.SizeSOL)
		}
		return fmt.Sprintf("%s  decision %s score=%.0f %s", ts(e.At), e.Mint.Short(), e.Score, verdict)
	case events.PositionOpened:
		return fmt.Sprintf("%s  opened %s %.3f SOL @ %.8f", ts(e.At), e.Mint.Short(), e.SizeSOL, e.EntryPrice)
	case events.PartialClose:
		return fmt.Sprintf("%s  tp%d %s sold %.0f%%", ts(e.At), e.LadderStep+1, e.Mint.Short(), e.FractionSold*100)
	case events.PositionClosed:
		return fmt.Sprintf("%s  closed %s %s pnl=%+.4f", ts(e.At), e.Mint.Short(), e.Reason, e.RealizedPnL)
	case events.RugAlert:
		return fmt.Sprintf("%s  RUG %s %s: %s", ts(e.At), e.Severity, e.Mint.Short(), e.Reason)
	case events.PhantomDetected:
		return fmt.Sprintf("%s  PHANTOM %s", ts(e.At), e.Mint.Short())
	case events.OrphanDetected:
		return fmt.Sprintf("%s  orphan %s balance=%d", ts(e.At), e.Mint.Short(), e.Balance)
	case events.RiskPaused:
		return fmt.Sprintf("%s  RISK PAUSED: %s", ts(e.At), e.Reason)
	case events.RiskResumed:
		return fmt.Sprintf("%s  risk resumed", ts(e.At))
	default:
		return ""
	}
}
