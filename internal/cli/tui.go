package cli

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/spotmatch/pkg/design"
)

var listDimStyle = lipgloss.NewStyle().Foreground(colorDim)

// =============================================================================
// OrderPickerModel - Interactive order selection
// =============================================================================

// OrderPickerModel is the bubbletea model for choosing a deck order. Orders
// the pool cannot fill are shown but cannot be selected.
type OrderPickerModel struct {
	Planes   []design.Plane
	PoolSize int
	Cursor   int
	Selected *design.Plane
}

// NewOrderPickerModel creates a picker over planes with the cursor on the
// largest plane a pool of poolSize images can fill.
func NewOrderPickerModel(planes []design.Plane, poolSize int) OrderPickerModel {
	m := OrderPickerModel{Planes: planes, PoolSize: poolSize}
	for i := range planes {
		if !m.fits(i) {
			break
		}
		m.Cursor = i
	}
	return m
}

func (m OrderPickerModel) fits(i int) bool {
	return i >= 0 && i < len(m.Planes) && m.PoolSize >= m.Planes[i].Symbols
}

func (m OrderPickerModel) Init() tea.Cmd {
	return nil
}

func (m OrderPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
		case "down", "j":
			if m.Cursor < len(m.Planes)-1 {
				m.Cursor++
			}
		case "enter":
			if !m.fits(m.Cursor) {
				return m, nil
			}
			p := m.Planes[m.Cursor]
			m.Selected = &p
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m OrderPickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Deck Order"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("%d images  ↑/↓ navigate  ⏎ select  q quit", m.PoolSize)))
	b.WriteString("\n\n")

	rows := make([][]string, len(m.Planes))
	for i, p := range m.Planes {
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows[i] = []string{
			cursor,
			strconv.Itoa(p.Order),
			strconv.Itoa(p.Symbols),
			strconv.Itoa(p.SymbolsPerCard),
			poolFit(p, m.PoolSize),
		}
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Order", "Cards", "Per card", "Images").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			base := lipgloss.NewStyle()
			fits := m.fits(row)
			switch {
			case row == m.Cursor && fits:
				return base.Foreground(colorGreen).Bold(true)
			case row == m.Cursor:
				return base.Foreground(colorDim).Bold(true)
			case fits:
				return base.Foreground(colorGreen)
			default:
				return base.Foreground(colorDim)
			}
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	if !m.fits(m.Cursor) {
		b.WriteString(StyleWarning.Render(fmt.Sprintf("  needs %d more images", m.Planes[m.Cursor].Symbols-m.PoolSize)))
		b.WriteString("\n")
	}
	return b.String()
}

// pickOrder runs the order picker and returns the chosen order, or 0 when
// the user quit without choosing.
func pickOrder(poolSize int) (int, error) {
	fit := design.ForPool(poolSize)
	if fit.Active == nil {
		return 0, fmt.Errorf("%d images are not enough for any deck (need %d)", poolSize, fit.Missing()+poolSize)
	}

	final, err := tea.NewProgram(NewOrderPickerModel(design.Planes(), poolSize)).Run()
	if err != nil {
		return 0, fmt.Errorf("order picker: %w", err)
	}
	m, ok := final.(OrderPickerModel)
	if !ok || m.Selected == nil {
		return 0, nil
	}
	return m.Selected.Order, nil
}
