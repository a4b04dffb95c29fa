// Package tui renders a terminal dashboard of tracked signals.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"signal-tracker/internal/signal"
)

// Source provides the newest signals
type Source interface {
	Recent(ctx context.Context, limit int) ([]*signal.Signal, error)
}

// Filter restricts which rows are shown
type Filter int

const (
	FilterAll Filter = iota
	FilterActive
	FilterFinished
)

func (f Filter) String() string {
	switch f {
	case FilterActive:
		return "active"
	case FilterFinished:
		return "finished"
	default:
		return "all"
	}
}

// KeyMap lists the dashboard bindings
type KeyMap struct {
	Quit, Up, Down, Enter, Escape, Refresh, Filter, Theme key.Binding
}

var keys = KeyMap{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c")),
	Up:      key.NewBinding(key.WithKeys("up", "k")),
	Down:    key.NewBinding(key.WithKeys("down", "j")),
	Enter:   key.NewBinding(key.WithKeys("enter")),
	Escape:  key.NewBinding(key.WithKeys("esc")),
	Refresh: key.NewBinding(key.WithKeys("r")),
	Filter:  key.NewBinding(key.WithKeys("f")),
	Theme:   key.NewBinding(key.WithKeys("t")),
}

// Messages
type TickMsg time.Time

// RowsMsg carries one refresh result
type RowsMsg struct {
	Rows    []*signal.Signal
	Err     error
	Latency time.Duration
}

// Model is the bubbletea model of the dashboard
type Model struct {
	source  Source
	limit   int
	refresh time.Duration

	Rows     []*signal.Signal
	Err      error
	Updated  time.Time
	Latency  []int // fetch latency history in ms
	Offset   int
	Detail   bool
	Filter   Filter
	ThemeIdx int
	styles   Styles

	Width, Height int
}

// NewModel creates a dashboard reading up to limit rows every refresh
func NewModel(source Source, limit int, refresh time.Duration) Model {
	if limit <= 0 {
		limit = 50
	}
	if refresh <= 0 {
		refresh = 2 * time.Second
	}
	return Model{
		source:  source,
		limit:   limit,
		refresh: refresh,
		styles:  NewStyles(0),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tea.SetWindowTitle("Signal Tracker"), m.fetch())
}

func (m Model) fetch() tea.Cmd {
	src, limit := m.source, m.limit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		rows, err := src.Recent(ctx, limit)
		return RowsMsg{Rows: rows, Err: err, Latency: time.Since(start)}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
	case TickMsg:
		return m, m.fetch()
	case RowsMsg:
		m.Err = msg.Err
		if msg.Err == nil {
			m.Rows = msg.Rows
			m.Updated = time.Now()
		}
		m.Latency = append(m.Latency, int(msg.Latency.Milliseconds()))
		if len(m.Latency) > 60 {
			m.Latency = m.Latency[1:]
		}
		m.clampOffset()
		return m, m.tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.Offset > 0 {
			m.Offset--
		}
	case key.Matches(msg, keys.Down):
		if m.Offset < len(m.visible())-1 {
			m.Offset++
		}
	case key.Matches(msg, keys.Enter):
		m.Detail = len(m.visible()) > 0
	case key.Matches(msg, keys.Escape):
		m.Detail = false
	case key.Matches(msg, keys.Refresh):
		return m, m.fetch()
	case key.Matches(msg, keys.Filter):
		m.Filter = (m.Filter + 1) % 3
		m.Offset = 0
		m.Detail = false
	case key.Matches(msg, keys.Theme):
		m.ThemeIdx = (m.ThemeIdx + 1) % len(Themes)
		m.styles = NewStyles(m.ThemeIdx)
	}
	return m, nil
}

func (m *Model) clampOffset() {
	n := len(m.visible())
	if m.Offset >= n {
		m.Offset = n - 1
	}
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// visible applies the filter
func (m Model) visible() []*signal.Signal {
	out := make([]*signal.Signal, 0, len(m.Rows))
	for _, s := range m.Rows {
		switch m.Filter {
		case FilterActive:
			if s.Status.Terminal() {
				continue
			}
		case FilterFinished:
			if !s.Status.Terminal() {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// Selected returns the highlighted row or nil
func (m Model) Selected() *signal.Signal {
	rows := m.visible()
	if m.Offset < 0 || m.Offset >= len(rows) {
		return nil
	}
	return rows[m.Offset]
}

// --- VIEW RENDERING ---

func (m Model) View() string {
	if m.Width == 0 {
		return "Loading..."
	}
	header := m.renderHeader()
	footer := m.renderFooter()
	bodyHeight := m.Height - lipgloss.Height(header) - lipgloss.Height(footer) - 2
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	var body string
	if m.Detail {
		body = m.renderDetail(m.Selected())
	} else {
		body = m.renderTable(bodyHeight)
	}
	box := m.styles.Border.Width(m.Width - 2).Height(bodyHeight).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, header, box, footer)
}

// Summary aggregates the loaded rows
type Summary struct {
	Total, Active, Hits int
	Best                float64
	BestToken           string
}

// Summarize counts active rows and rows that reached at least 2x
func Summarize(rows []*signal.Signal) Summary {
	var s Summary
	for _, r := range rows {
		s.Total++
		if !r.Status.Terminal() {
			s.Active++
		}
		if r.PeakMultiplier >= 2 {
			s.Hits++
		}
		if r.PeakMultiplier > s.Best {
			s.Best = r.PeakMultiplier
			s.BestToken = r.Label()
		}
	}
	return s
}

func (m Model) renderHeader() string {
	st := m.styles
	sum := Summarize(m.Rows)

	status := st.Gain.Render("● LIVE")
	if m.Err != nil {
		status = st.Loss.Render("● " + truncate(m.Err.Error(), 30))
	}
	var hitRate float64
	if sum.Total > 0 {
		hitRate = float64(sum.Hits) / float64(sum.Total) * 100
	}
	parts := []string{
		status,
		fmt.Sprintf("Tracked: %d", sum.Total),
		fmt.Sprintf("Active: %d", sum.Active),
		st.Gain.Render(fmt.Sprintf("2X: %d (%.0f%%)", sum.Hits, hitRate)),
	}
	if sum.Best > 0 {
		parts = append(parts, fmt.Sprintf("Best: %s %.2fx", truncate(sum.BestToken, 10), sum.Best))
	}
	parts = append(parts, "Fetch "+renderSparkline(m.Latency, 12, st.Theme.Accent))
	if !m.Updated.IsZero() {
		parts = append(parts, m.Updated.Format("15:04:05"))
	}
	return st.Header.Width(m.Width).Render(strings.Join(parts, " │ "))
}

func (m Model) renderFooter() string {
	st := m.styles
	var s string
	if m.Detail {
		s = st.HotKey("Esc", "Back") + " " + st.HotKey("Q", "uit")
	} else {
		s = strings.Join([]string{
			st.HotKey("↑↓", "Scroll"),
			st.HotKey("Ent", "Detail"),
			st.HotKey("F", "ilter:"+m.Filter.String()),
			st.HotKey("R", "efresh"),
			st.HotKey("T", "heme:"+st.Theme.Name),
			st.HotKey("Q", "uit"),
		}, " ")
	}
	return st.Footer.Width(m.Width).Render(s)
}

const rowFormat = "%-5s %-12s %-6s %9s %9s %9s %7s %-10s"

func (m Model) renderTable(h int) string {
	st := m.styles
	lines := []string{st.TableHeader.Render(fmt.Sprintf(rowFormat, "TIME", "TOKEN", "CHAIN", "ENTRY", "NOW", "PEAK", "X", "STATUS"))}

	rows := m.visible()
	if len(rows) == 0 {
		lines = append(lines, st.Muted.Render("no signals"))
		return strings.Join(lines, "\n")
	}

	// keep the selection in view
	start := 0
	if m.Offset >= h-1 {
		start = m.Offset - (h - 2)
	}
	for i := start; i < len(rows) && len(lines) < h; i++ {
		s := rows[i]
		row := fmt.Sprintf(rowFormat,
			s.ReceivedAt.Local().Format("15:04"),
			truncate(s.Label(), 12),
			truncate(s.Chain, 6),
			compactUSD(s.EntryMC),
			compactUSD(s.CurrentMC()),
			compactUSD(s.PeakMC),
			fmt.Sprintf("%.2fx", s.PeakMultiplier),
			string(s.Status),
		)
		style := m.rowStyle(s)
		if i == m.Offset {
			style = style.Reverse(true)
		}
		lines = append(lines, style.Render(row))
	}
	return strings.Join(lines, "\n")
}

func (m Model) rowStyle(s *signal.Signal) lipgloss.Style {
	switch {
	case s.Status == signal.StatusInvalidCA || s.Status == signal.StatusNoPairs:
		return m.styles.Warning
	case s.Status == signal.StatusStopped:
		return m.styles.Muted
	case s.GainPercent() < 0:
		return m.styles.Loss
	default:
		return m.styles.Gain
	}
}

func (m Model) renderDetail(s *signal.Signal) string {
	if s == nil {
		return m.styles.Muted.Render("nothing selected")
	}
	st := m.styles
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", st.Header.Render(s.Label()), st.Muted.Render(s.Address))
	fmt.Fprintf(&b, "Channel: %s   Received: %s   Status: %s   Updates: %d\n",
		s.ChannelName, s.ReceivedAt.Local().Format("2006-01-02 15:04"), s.Status, s.UpdateCount)
	fmt.Fprintf(&b, "Entry: %s   Now: %s (%+.1f%%)   Peak: %s (%.2fx)\n",
		compactUSD(s.EntryMC), compactUSD(s.CurrentMC()), s.GainPercent(), compactUSD(s.PeakMC), s.PeakMultiplier)
	if s.ATH != nil {
		fmt.Fprintf(&b, "ATH: %s at %s\n", compactUSD(s.ATH.MarketCap), s.ATH.At.Local().Format("15:04:05"))
	}

	if len(s.Intervals) > 0 {
		b.WriteString("\n" + st.TableHeader.Render("Checkpoints") + "\n")
		minutes := make([]int, 0, len(s.Intervals))
		for k := range s.Intervals {
			minutes = append(minutes, k)
		}
		sort.Ints(minutes)
		for _, k := range minutes {
			smp := s.Intervals[k]
			fmt.Fprintf(&b, "  %3dm  %9s  %+.1f%%\n", k, compactUSD(smp.MarketCap), smp.ChangePct)
		}
	}
	if len(s.AlertTimes) > 0 {
		b.WriteString("\n" + st.TableHeader.Render("Thresholds") + "\n")
		levels := make([]float64, 0, len(s.AlertTimes))
		for k := range s.AlertTimes {
			levels = append(levels, k)
		}
		sort.Float64s(levels)
		for _, k := range levels {
			fmt.Fprintf(&b, "  %gx after %s\n", k, formatDuration(s.AlertTimes[k].Sub(s.ReceivedAt)))
		}
	}
	if s.History != "" {
		b.WriteString("\n" + st.TableHeader.Render("Alerts") + "\n" + s.History + "\n")
	}
	if s.ErrorLog != "" {
		b.WriteString("\n" + st.Loss.Render("Errors") + "\n" + s.ErrorLog + "\n")
	}
	if s.DexURL != "" {
		b.WriteString("\n" + st.Muted.Render(s.DexURL))
	}
	return b.String()
}

// --- HELPERS ---

func truncate(s string, n int) string { return runewidth.Truncate(s, n, "…") }

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func compactUSD(v float64) string {
	switch {
	case v <= 0:
		return "-"
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func renderSparkline(data []int, width int, color lipgloss.Color) string {
	if width < 1 {
		return ""
	}
	if len(data) == 0 {
		return strings.Repeat(" ", width)
	}
	points := data
	if len(points) > width {
		points = points[len(points)-width:]
	}

	lo, hi := points[0], points[0]
	for _, v := range points {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	levels := []rune(" ▂▃▄▅▆▇█")
	var b strings.Builder
	for i := len(points); i < width; i++ {
		b.WriteRune(' ')
	}
	for _, v := range points {
		b.WriteRune(levels[(v-lo)*7/span])
	}
	return lipgloss.NewStyle().Foreground(color).Render(b.String())
}
