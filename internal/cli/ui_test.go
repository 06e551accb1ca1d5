package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/spotmatch/pkg/design"
)

func TestPoolFit(t *testing.T) {
	plane := design.PlaneOf(3) // 13 symbols
	tests := map[int]string{
		13: "exact",
		20: "7 unused",
		10: "3 missing",
	}
	for pool, want := range tests {
		if got := poolFit(plane, pool); got != want {
			t.Errorf("poolFit(13, %d) = %q, want %q", pool, got, want)
		}
	}
}

func TestPlaneTable(t *testing.T) {
	out := planeTable(design.Planes(), 0)
	for _, want := range []string{"Order", "133", "12"} {
		if !strings.Contains(out, want) {
			t.Errorf("table lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Pool") {
		t.Error("pool column shown without a pool")
	}

	withPool := planeTable(design.Planes(), 20)
	for _, want := range []string{"Pool", "13 unused", "11 missing"} {
		if !strings.Contains(withPool, want) {
			t.Errorf("table lacks %q:\n%s", want, withPool)
		}
	}
}

func TestOrderPicker(t *testing.T) {
	key := func(s string) tea.Msg {
		switch s {
		case "up":
			return tea.KeyMsg{Type: tea.KeyUp}
		case "down":
			return tea.KeyMsg{Type: tea.KeyDown}
		case "enter":
			return tea.KeyMsg{Type: tea.KeyEnter}
		}
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
	press := func(m OrderPickerModel, keys ...string) (OrderPickerModel, tea.Cmd) {
		var cmd tea.Cmd
		for _, k := range keys {
			var next tea.Model
			next, cmd = m.Update(key(k))
			m = next.(OrderPickerModel)
		}
		return m, cmd
	}

	// 40 images fill orders 2, 3 and 5.
	m := NewOrderPickerModel(design.Planes(), 40)
	if m.Cursor != 2 {
		t.Fatalf("initial cursor = %d, want 2 (order 5)", m.Cursor)
	}

	m, cmd := press(m, "down", "enter")
	if m.Selected != nil || cmd != nil {
		t.Error("order 7 needs 57 images and must not be selectable")
	}
	if !strings.Contains(m.View(), "needs 17 more images") {
		t.Errorf("view lacks shortfall:\n%s", m.View())
	}

	m, cmd = press(m, "up", "k", "enter")
	if m.Selected == nil || m.Selected.Order != 3 {
		t.Fatalf("selected = %+v, want order 3", m.Selected)
	}
	if cmd == nil {
		t.Error("selection should quit the program")
	}
}

func TestOrderPickerQuit(t *testing.T) {
	m := NewOrderPickerModel(design.Planes(), 7)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if next.(OrderPickerModel).Selected != nil || cmd == nil {
		t.Error("q should quit without a selection")
	}
}
