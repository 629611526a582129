// Package output renders channel session state, secure command results,
// and test suite summaries as colorized tables.
package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"cryptnox/channel"
	"cryptnox/testing"
)

var (
	colorHeader  = text.Colors{text.FgCyan, text.Bold}
	colorLabel   = text.Colors{text.FgYellow}
	colorValue   = text.Colors{text.FgWhite}
	colorSuccess = text.Colors{text.FgGreen}
	colorError   = text.Colors{text.FgRed}
	colorWarn    = text.Colors{text.FgYellow}
)

func getTableStyle() table.Style {
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Color.Row = text.Colors{text.FgWhite}
	style.Color.RowAlternate = text.Colors{text.FgHiWhite}
	style.Options.SeparateRows = false
	return style
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(getTableStyle())
	t.Style().Options.SeparateRows = false
	return t
}

// PrintReaderList prints the PC/SC readers discovered on the host.
func PrintReaderList(readers []string) {
	fmt.Println()
	t := newTable()
	t.SetTitle("AVAILABLE SMART CARD READERS")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 8},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})

	if len(readers) == 0 {
		t.AppendRow(table.Row{"Status", colorWarn.Sprint("No readers found")})
	} else {
		for i, r := range readers {
			t.AppendRow(table.Row{fmt.Sprintf("[%d]", i), r})
		}
	}
	t.Render()
}

// PrintSessionState prints the engine's current state machine position
// and whether the secure session is open.
func PrintSessionState(readerName string, state channel.State, open bool) {
	fmt.Println()
	t := newTable()
	t.SetTitle("SECURE CHANNEL STATE")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 15},
		{Number: 2, Colors: colorValue, WidthMin: 40},
	})

	t.AppendRow(table.Row{"Reader", readerName})
	t.AppendRow(table.Row{"State", state.String()})
	status := colorError.Sprint("closed")
	if open {
		status = colorSuccess.Sprint("open")
	}
	t.AppendRow(table.Row{"Session", status})
	t.Render()
}

// PrintSecureCommandResult prints the outcome of one secure-messaging
// exchange: plaintext response, status word, and whether it succeeded.
func PrintSecureCommandResult(label string, data []byte, sw1, sw2 byte, err error) {
	fmt.Println()
	t := newTable()
	t.SetTitle(strings.ToUpper(label))
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 15},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})

	t.AppendRow(table.Row{"Status Word", fmt.Sprintf("%02X%02X", sw1, sw2)})
	if len(data) > 0 {
		t.AppendRow(table.Row{"Response", fmt.Sprintf("%X", data)})
	}
	if err != nil {
		t.AppendRow(table.Row{"Result", colorError.Sprintf("✗ %v", err)})
	} else {
		t.AppendRow(table.Row{"Result", colorSuccess.Sprint("✓ OK")})
	}
	t.Render()
}

// PrintAPDUTrace prints one labeled APDU (a command or a response) in
// hex, used by the verbose debug sink.
func PrintAPDUTrace(label string, data []byte) {
	fmt.Printf("%s %X\n", colorLabel.Sprint(label), data)
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Println(colorError.Sprintf("✗ Error: %s", msg))
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Println(colorSuccess.Sprintf("✓ %s", msg))
}

// PrintWarning prints a warning message.
func PrintWarning(msg string) {
	fmt.Println(colorWarn.Sprintf("⚠ %s", msg))
}

// PrintTestSummary prints a testing.Suite's results as a summary table
// plus a per-property/per-scenario breakdown.
func PrintTestSummary(results []testing.Result) {
	if len(results) == 0 {
		PrintWarning("No test results")
		return
	}

	passed, failed := 0, 0
	byCategory := make(map[string]int)
	var failedNames []string
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
			failedNames = append(failedNames, r.Name)
		}
		byCategory[r.Category]++
	}
	passRate := float64(passed) / float64(len(results)) * 100

	fmt.Println()
	t := newTable()
	t.SetTitle("TEST SUITE SUMMARY")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 20},
		{Number: 2, Colors: colorValue, WidthMin: 15},
	})
	t.AppendRow(table.Row{"Total Tests", len(results)})
	t.AppendRow(table.Row{"Passed", colorSuccess.Sprintf("%d", passed)})
	t.AppendRow(table.Row{"Failed", colorError.Sprintf("%d", failed)})
	t.AppendRow(table.Row{"Pass Rate", fmt.Sprintf("%.1f%%", passRate)})
	t.Render()

	fmt.Println()
	t2 := newTable()
	t2.SetTitle("DETAILED RESULTS")
	t2.AppendHeader(table.Row{"Status", "Category", "Test", "Detail"})
	t2.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 6},
		{Number: 2, Colors: colorLabel, WidthMin: 14},
		{Number: 3, Colors: colorValue, WidthMin: 35},
		{Number: 4, Colors: colorValue, WidthMin: 40},
	})
	for _, r := range results {
		status := colorSuccess.Sprint("✓")
		detail := r.Detail
		if !r.Passed {
			status = colorError.Sprint("✗")
			if r.Error != "" {
				detail = r.Error
			}
		}
		if len(detail) > 40 {
			detail = detail[:37] + "..."
		}
		t2.AppendRow(table.Row{status, r.Category, r.Name, detail})
	}
	t2.Render()

	if len(failedNames) > 0 {
		fmt.Println()
		t3 := newTable()
		t3.SetTitle("FAILED TESTS")
		t3.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Colors: colorError, WidthMin: 60}})
		for _, name := range failedNames {
			t3.AppendRow(table.Row{name})
		}
		t3.Render()
	}
}
