package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algodesk/internal/config"
)

func plainOutput(buf *bytes.Buffer) *Output {
	return &Output{writer: buf}
}

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(plainOutput(&buf), "ID", "NAME", "TRADING")
	table.AddRow("group-12", "Alpha", ColorGreen+"ON"+ColorReset)
	table.AddRow("g2", "Beta", "OFF")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID        NAME   TRADING", lines[0])
	assert.Equal(t, strings.Repeat("─", 8+2+5+2+7), lines[1])
	assert.Equal(t, "group-12  Alpha  ON", stripANSI(lines[2]))
	assert.Equal(t, "g2        Beta   OFF", lines[3])
}

func TestTableWithoutHeadersPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(plainOutput(&buf))
	table.AddRow("x")
	table.Render()
	assert.Empty(t, buf.String())
}

func TestBoxPadsToWidestLine(t *testing.T) {
	var buf bytes.Buffer
	plainOutput(&buf).Box("RSI", []string{"period  14", "source  close price"})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	width := utf8.RuneCountInString(lines[0])
	for _, line := range lines {
		assert.Equal(t, width, visibleLen(line), line)
	}
	assert.True(t, strings.HasPrefix(lines[0], "┌"))
	assert.True(t, strings.HasPrefix(lines[5], "└"))
}

func TestJSONOutputIgnoresColor(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{writer: &buf, jsonMode: true}
	require.NoError(t, out.JSON(map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, buf.String())
	assert.Equal(t, "ON", out.Green("ON"))
}

func TestProperty_StripANSIRestoresVisibleText(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	colors := gen.OneConstOf(ColorRed, ColorGreen, ColorYellow, ColorCyan, ColorBold, ColorDim)

	properties.Property("colouring never changes the visible width", prop.ForAll(
		func(text, color string) bool {
			colored := color + text + ColorReset
			return stripANSI(colored) == text &&
				visibleLen(colored) == utf8.RuneCountInString(text)
		},
		gen.AlphaString(),
		colors,
	))

	properties.TestingRun(t)
}

func TestUseColor(t *testing.T) {
	tests := []struct {
		enabled, jsonMode, terminal bool
		want                        bool
	}{
		{true, false, true, true},
		{false, false, true, false},
		{true, true, true, false},
		{true, false, false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, useColor(tt.enabled, tt.jsonMode, tt.terminal), "%+v", tt)
	}
}

func TestUISettingsFromContext(t *testing.T) {
	assert.True(t, uiSettings(nil).ColorEnabled)
	assert.True(t, uiSettings(context.Background()).ColorEnabled)

	ctx := withUI(context.Background(), config.UIConfig{ColorEnabled: false, TimeFormat: "15:04"})
	ui := uiSettings(ctx)
	assert.False(t, ui.ColorEnabled)
	assert.Equal(t, "15:04", ui.TimeFormat)
}
