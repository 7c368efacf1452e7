package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"algodesk/internal/config"
	"algodesk/internal/models"
	"algodesk/pkg/utils"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates a new Output instance. Color follows the [ui] settings
// carried by the command's context.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()
	ui := uiSettings(cmd.Context())
	return &Output{
		writer:       w,
		jsonMode:     jsonMode,
		colorEnabled: useColor(ui.ColorEnabled, jsonMode, w == os.Stdout && !color.NoColor),
	}
}

type uiKey struct{}

// withUI attaches the [ui] settings to ctx.
func withUI(ctx context.Context, ui config.UIConfig) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, uiKey{}, ui)
}

func uiSettings(ctx context.Context) config.UIConfig {
	if ctx != nil {
		if ui, ok := ctx.Value(uiKey{}).(config.UIConfig); ok {
			return ui
		}
	}
	return config.UIConfig{ColorEnabled: true}
}

// useColor reports whether escape codes are written. terminal is true when
// output goes to a color-capable stdout (NO_COLOR unset).
func useColor(enabled, jsonMode, terminal bool) bool {
	return enabled && !jsonMode && terminal
}

// palette maps the escape codes above to forced-on colors; whether to
// color at all is decided per Output.
var palette = map[string]*color.Color{
	ColorRed:    forced(color.FgRed),
	ColorGreen:  forced(color.FgGreen),
	ColorYellow: forced(color.FgYellow),
	ColorCyan:   forced(color.FgCyan),
	ColorBold:   forced(color.Bold),
	ColorDim:    forced(color.Faint),
}

func forced(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	c.EnableColor()
	return c
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.colored(ColorGreen, format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.colored(ColorRed, format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.colored(ColorYellow, format, args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.colored(ColorCyan, format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.colored(ColorBold, format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.colored(ColorDim, format, args...)
}

func (o *Output) colored(code, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, o.ColoredString(code, fmt.Sprintf(format, args...)))
}

// ColoredString returns a colored string without newline.
func (o *Output) ColoredString(code, text string) string {
	if !o.colorEnabled {
		return text
	}
	if c, ok := palette[code]; ok {
		return c.Sprint(text)
	}
	return code + text + ColorReset
}

// Green returns green colored text.
func (o *Output) Green(text string) string { return o.ColoredString(ColorGreen, text) }

// Red returns red colored text.
func (o *Output) Red(text string) string { return o.ColoredString(ColorRed, text) }

// Yellow returns yellow colored text.
func (o *Output) Yellow(text string) string { return o.ColoredString(ColorYellow, text) }

// DimText returns dimmed text.
func (o *Output) DimText(text string) string { return o.ColoredString(ColorDim, text) }

// PnL formats an amount with sign and gain/loss color.
func (o *Output) PnL(m models.Money) string {
	formatted := utils.FormatPnL(m.Decimal)
	switch m.Sign() {
	case 1:
		return o.Green(formatted)
	case -1:
		return o.Red(formatted)
	}
	return formatted
}

// OnOff renders a trading toggle.
func (o *Output) OnOff(enabled bool) string {
	if enabled {
		return o.Green("ON")
	}
	return o.Red("OFF")
}

// OrderStatus colors an order status by lifecycle phase.
func (o *Output) OrderStatus(s models.OrderStatus) string {
	switch s {
	case models.OrderComplete:
		return o.Green(string(s))
	case models.OrderRejected, models.OrderCancelled:
		return o.Red(string(s))
	}
	return o.Yellow(string(s))
}

// PositionStatus colors a position label by side.
func (o *Output) PositionStatus(s models.PositionStatus) string {
	switch s {
	case models.PositionBuy:
		return o.Green(string(s))
	case models.PositionSell:
		return o.Red(string(s))
	}
	return o.DimText(string(s))
}

// MarketSession renders the exchange session.
func (o *Output) MarketSession(s utils.MarketSession) string {
	switch s {
	case utils.SessionOpen:
		return o.Green("● OPEN")
	case utils.SessionPreOpen:
		return o.Yellow("● PRE-OPEN")
	case utils.SessionSquareOffWarn:
		return o.Yellow("⚠ INTRADAY SQUARE-OFF")
	}
	return o.Red("● CLOSED")
}

// Table represents a simple table for output.
type Table struct {
	headers []string
	rows    [][]string
	output  *Output
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{headers: headers, output: output}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], visibleLen(cell))
			}
		}
	}

	t.printRow(t.headers, widths, true)
	t.printSeparator(widths)
	for _, row := range t.rows {
		t.printRow(row, widths, false)
	}
}

func (t *Table) printRow(cells []string, widths []int, isHeader bool) {
	parts := make([]string, 0, len(widths))
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		padded := cell + strings.Repeat(" ", max(widths[i]-visibleLen(cell), 0))
		if isHeader {
			padded = t.output.ColoredString(ColorBold, padded)
		}
		parts = append(parts, padded)
	}
	t.output.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
}

func (t *Table) printSeparator(widths []int) {
	parts := make([]string, 0, len(widths))
	for _, w := range widths {
		parts = append(parts, strings.Repeat("─", w))
	}
	t.output.Println(t.output.DimText(strings.Join(parts, "──")))
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

func visibleLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// Box draws a box around content.
func (o *Output) Box(title string, content []string) {
	inner := visibleLen(title)
	for _, line := range content {
		inner = max(inner, visibleLen(line))
	}
	border := strings.Repeat("─", inner+2)
	pad := func(s string) string {
		return s + strings.Repeat(" ", inner-visibleLen(s))
	}

	o.Printf("%s\n", o.DimText("┌"+border+"┐"))
	o.Printf("%s %s %s\n", o.DimText("│"), o.ColoredString(ColorBold, pad(title)), o.DimText("│"))
	o.Printf("%s\n", o.DimText("├"+border+"┤"))
	for _, line := range content {
		o.Printf("%s %s %s\n", o.DimText("│"), pad(line), o.DimText("│"))
	}
	o.Printf("%s\n", o.DimText("└"+border+"┘"))
}
