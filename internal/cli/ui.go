package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/spotmatch/pkg/design"
	"github.com/matzehuels/spotmatch/pkg/pipeline"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35") // fillable orders, success
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorBlue   = lipgloss.Color("75") // suggested commands
	colorWhite  = lipgloss.Color("255")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240") // orders the pool cannot fill
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleCached   = lipgloss.NewStyle().Foreground(colorGreen)
	styleComputed = lipgloss.NewStyle().Foreground(colorGray)

	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
	iconCached  = "cached"
	iconFresh   = "fresh"
)

// =============================================================================
// Status Output
// =============================================================================

// statusLine prints msg after a styled icon.
func statusLine(icon string, style lipgloss.Style, format string, args ...any) {
	fmt.Println(style.Render(icon) + " " + fmt.Sprintf(format, args...))
}

func printSuccess(format string, args ...any) {
	statusLine(iconSuccess, styleIconSuccess, format, args...)
}

func printError(format string, args ...any) {
	statusLine(iconError, styleIconError, format, args...)
}

func printWarning(format string, args ...any) {
	statusLine(iconWarning, styleIconWarning, "%s", StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	statusLine(iconInfo, styleIconInfo, format, args...)
}

// printDetail prints an indented, dimmed line under a status line.
func printDetail(format string, args ...any) {
	fmt.Println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile reports a written output file.
func printFile(path string) {
	printDetail("%s %s", iconArrow, path)
}

// =============================================================================
// Stats Display
// =============================================================================

// printStats prints generation statistics on a single line.
func printStats(stats pipeline.Stats, info pipeline.CacheInfo) {
	parts := []string{
		fmt.Sprintf("%d cards", stats.Cards),
		fmt.Sprintf("%d pages", stats.Pages),
	}
	if stats.Attempts > 0 {
		parts = append(parts, fmt.Sprintf("%d attempts", stats.Attempts))
	}
	if stats.RelaxRounds > 0 {
		parts = append(parts, fmt.Sprintf("%d relax rounds", stats.RelaxRounds))
	}

	status := iconFresh
	statusStyle := styleComputed
	if info.LayoutHit {
		status = iconCached
		statusStyle = styleCached
	}

	line := "  "
	for i, part := range parts {
		if i > 0 {
			line += StyleDim.Render(" · ")
		}
		line += StyleDim.Render(part)
	}
	line += StyleDim.Render(" · ") + statusStyle.Render(status)
	fmt.Println(line)
}

// =============================================================================
// Tables
// =============================================================================

// renderTable renders rows with the CLI's table style. highlight reports
// whether a data row is drawn in the success color.
func renderTable(headers []string, rows [][]string, highlight func(row int) bool) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			cell := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case highlight != nil && highlight(row):
				return cell.Foreground(colorGreen)
			default:
				return cell.Foreground(colorWhite)
			}
		}).
		Render()
}

// planeTable renders the supported planes. With a pool size above zero it
// adds how each plane fits the pool and highlights the ones it can fill.
func planeTable(planes []design.Plane, poolSize int) string {
	headers := []string{"Order", "Cards", "Symbols", "Per card"}
	if poolSize > 0 {
		headers = append(headers, "Pool")
	}

	rows := make([][]string, len(planes))
	for i, p := range planes {
		rows[i] = []string{
			strconv.Itoa(p.Order),
			strconv.Itoa(p.Symbols),
			strconv.Itoa(p.Symbols),
			strconv.Itoa(p.SymbolsPerCard),
		}
		if poolSize > 0 {
			rows[i] = append(rows[i], poolFit(p, poolSize))
		}
	}

	return renderTable(headers, rows, func(row int) bool {
		return poolSize > 0 && row < len(planes) && poolSize >= planes[row].Symbols
	})
}

func poolFit(p design.Plane, poolSize int) string {
	switch {
	case poolSize == p.Symbols:
		return "exact"
	case poolSize > p.Symbols:
		return fmt.Sprintf("%d unused", poolSize-p.Symbols)
	default:
		return fmt.Sprintf("%d missing", p.Symbols-poolSize)
	}
}

// =============================================================================
// Commands & Next Steps
// =============================================================================

// printNextStep prints a suggested next command.
func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}
