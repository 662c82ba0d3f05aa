package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"gem-assistant/internal/models"
)

func newColorOutput(buf *bytes.Buffer) *Output {
	return &Output{writer: buf, colorEnabled: true}
}

func TestFormatReturnProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	output := newColorOutput(&bytes.Buffer{})

	properties.Property("non-negative returns are green with a plus sign", prop.ForAll(
		func(fraction float64) bool {
			formatted := output.FormatReturn(fraction)
			return strings.HasPrefix(formatted, ColorGreen) &&
				strings.Contains(formatted, "+") &&
				strings.HasSuffix(formatted, ColorReset)
		},
		gen.Float64Range(0, 10),
	))

	properties.Property("negative returns are red with a minus sign", prop.ForAll(
		func(fraction float64) bool {
			formatted := output.FormatReturn(-fraction)
			return strings.HasPrefix(formatted, ColorRed) &&
				strings.Contains(formatted, "-")
		},
		gen.Float64Range(0.01, 10),
	))

	properties.Property("stripANSI leaves only the percentage text", prop.ForAll(
		func(fraction float64) bool {
			stripped := stripANSI(output.FormatReturn(fraction))
			return !strings.Contains(stripped, "\033") &&
				strings.HasSuffix(stripped, "%")
		},
		gen.Float64Range(-10, 10),
	))

	properties.TestingRun(t)
}

func TestSignalRendering(t *testing.T) {
	output := newColorOutput(&bytes.Buffer{})

	cases := []struct {
		kind  models.SignalKind
		color string
		text  string
	}{
		{models.SignalBuy, ColorGreen, "BUY"},
		{models.SignalSell, ColorRed, "SELL"},
		{models.SignalHold, ColorYellow, "HOLD"},
	}
	for _, tc := range cases {
		rendered := output.Signal(tc.kind)
		if !strings.HasPrefix(rendered, tc.color) || !strings.Contains(rendered, tc.text) {
			t.Errorf("Signal(%s) = %q", tc.kind, rendered)
		}
	}
}

func TestTableAlignsColoredCells(t *testing.T) {
	var buf bytes.Buffer
	output := newColorOutput(&buf)

	table := NewTable(output, "Instrument", "Return")
	table.AddRow("EIMI", output.FormatReturn(0.31))
	table.AddRow("CNDX", output.FormatReturn(-0.05))
	table.Render()

	var widths []int
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		stripped := stripANSI(line)
		if strings.HasPrefix(stripped, "─") {
			continue
		}
		widths = append(widths, len(stripped))
	}
	if len(widths) != 3 {
		t.Fatalf("got %d printable lines, want 3", len(widths))
	}
	for i := 1; i < len(widths); i++ {
		if widths[i] != widths[0] {
			t.Errorf("row %d width %d, header width %d", i, widths[i], widths[0])
		}
	}
}

func TestOutputPlainWhenColorDisabled(t *testing.T) {
	var buf bytes.Buffer
	output := &Output{writer: &buf, colorEnabled: false}

	output.Success("saved %d signals", 1)
	output.Error("failed")
	if strings.Contains(buf.String(), "\033[") {
		t.Errorf("plain output contains escape codes: %q", buf.String())
	}
}
