package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"signal-tracker/internal/signal"
)

type stubSource struct {
	rows []*signal.Signal
	err  error
}

func (s stubSource) Recent(context.Context, int) ([]*signal.Signal, error) {
	return s.rows, s.err
}

func row(name string, peak float64, status signal.Status) *signal.Signal {
	s := signal.New(signal.Meta{ReceivedAt: time.Now().Add(-time.Hour)})
	s.TokenName = name
	s.EntryMC = 100_000
	s.PeakMC = 100_000 * peak
	s.PeakMultiplier = peak
	s.Status = status
	return s
}

func sample() []*signal.Signal {
	return []*signal.Signal{
		row("ALPHA", 3.5, signal.StatusActive),
		row("BETA", 1.2, signal.StatusStopped),
		row("GAMMA", 2.0, signal.StatusActive),
		row("DELTA", 1.0, signal.StatusNoPairs),
	}
}

func loaded(t *testing.T) Model {
	t.Helper()
	m := NewModel(stubSource{rows: sample()}, 10, time.Second)
	msg := m.fetch()()
	updated, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("expected a follow-up tick after refresh")
	}
	m = updated.(Model)
	m.Width, m.Height = 120, 30
	return m
}

func press(m Model, k string) Model {
	var msg tea.KeyMsg
	switch k {
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEscape}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	updated, _ := m.Update(msg)
	return updated.(Model)
}

func TestSummarize(t *testing.T) {
	sum := Summarize(sample())
	if sum.Total != 4 || sum.Active != 2 || sum.Hits != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.BestToken != "ALPHA" || sum.Best != 3.5 {
		t.Errorf("expected ALPHA as best, got %s %.2f", sum.BestToken, sum.Best)
	}
}

func TestFilterCycles(t *testing.T) {
	m := loaded(t)
	if len(m.visible()) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(m.visible()))
	}

	m = press(m, "f")
	if m.Filter != FilterActive || len(m.visible()) != 2 {
		t.Errorf("active filter: %v %d", m.Filter, len(m.visible()))
	}
	m = press(m, "f")
	if m.Filter != FilterFinished || len(m.visible()) != 2 {
		t.Errorf("finished filter: %v %d", m.Filter, len(m.visible()))
	}
	m = press(m, "f")
	if m.Filter != FilterAll {
		t.Errorf("expected filter to wrap to all, got %v", m.Filter)
	}
}

func TestScrollAndDetail(t *testing.T) {
	m := loaded(t)

	m = press(m, "up")
	if m.Offset != 0 {
		t.Errorf("offset should not go negative, got %d", m.Offset)
	}
	for i := 0; i < 10; i++ {
		m = press(m, "down")
	}
	if m.Offset != 3 {
		t.Errorf("offset should stop at last row, got %d", m.Offset)
	}
	if m.Selected().TokenName != "DELTA" {
		t.Errorf("expected DELTA selected, got %s", m.Selected().TokenName)
	}

	m = press(m, "enter")
	if !m.Detail {
		t.Fatal("enter should open the detail view")
	}
	if !strings.Contains(m.View(), "DELTA") {
		t.Error("detail view should show the selected token")
	}
	m = press(m, "esc")
	if m.Detail {
		t.Error("esc should close the detail view")
	}
}

func TestViewRendersRows(t *testing.T) {
	m := loaded(t)
	view := m.View()
	for _, want := range []string{"ALPHA", "GAMMA", "3.50x", "Tracked: 4", "2X: 2"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m = press(m, "t")
	if m.ThemeIdx != 1 {
		t.Errorf("expected theme 1, got %d", m.ThemeIdx)
	}
}

func TestFetchErrorKeepsRows(t *testing.T) {
	m := loaded(t)
	updated, _ := m.Update(RowsMsg{Err: errors.New("database is locked")})
	m = updated.(Model)
	if len(m.Rows) != 4 {
		t.Errorf("rows should survive a failed refresh, got %d", len(m.Rows))
	}
	if !strings.Contains(m.View(), "database is locked") {
		t.Error("header should surface the fetch error")
	}
}

func TestQuit(t *testing.T) {
	m := loaded(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestCompactUSD(t *testing.T) {
	cases := map[float64]string{0: "-", 950: "$950", 12_500: "$12.5K", 3_400_000: "$3.40M", 2e9: "$2.00B"}
	for in, want := range cases {
		if got := compactUSD(in); got != want {
			t.Errorf("compactUSD(%v) = %q, want %q", in, got, want)
		}
	}
}
