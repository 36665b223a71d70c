package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"golang.org/x/sys/unix"
)

const defaultWidth = 60

// RenderOptions controls the summary layout.
type RenderOptions struct {
	Color   bool
	Width   int
	Verbose bool
}

func IsTTY() bool {
	fd := os.Stdout.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// TermWidth returns the terminal width, or 80 when stdout is not a terminal.
func TermWidth() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws == nil || ws.Col == 0 {
		return 80
	}

	return int(ws.Col)
}

// UseColor resolves the auto|always|never setting. NO_COLOR always wins.
func UseColor(mode string) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	switch strings.ToLower(mode) {
	case "always":
		return true
	case "never":
		return false
	default:
		return IsTTY()
	}
}

// OptionsFor derives render options for stdout from the color mode.
func OptionsFor(mode string, verbose bool) RenderOptions {
	width := defaultWidth
	if IsTTY() {
		width = min(TermWidth(), defaultWidth)
	}

	return RenderOptions{Color: UseColor(mode), Width: width, Verbose: verbose}
}

type palette struct {
	pass, fail, bold, faint *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		pass:  color.New(color.FgGreen, color.Bold),
		fail:  color.New(color.FgRed, color.Bold),
		bold:  color.New(color.Bold),
		faint: color.New(color.Faint),
	}

	for _, c := range []*color.Color{p.pass, p.fail, p.bold, p.faint} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return p
}

// Render writes the run summary.
func (a *Aggregator) Render(w io.Writer, opts RenderOptions) error {
	width := opts.Width
	if width <= 0 {
		width = defaultWidth
	}

	p := newPalette(opts.Color)
	rule := strings.Repeat("=", width)

	var sb strings.Builder

	fmt.Fprintln(&sb)
	fmt.Fprintln(&sb, rule)
	fmt.Fprintln(&sb, p.bold.Sprint("TEST SUMMARY"))
	fmt.Fprintln(&sb, rule)

	results := a.Results()

	for i, r := range results {
		verdict := p.pass.Sprint("PASS")
		if !r.Success {
			verdict = p.fail.Sprint("FAIL")
		}

		fmt.Fprintf(&sb, "%d. %s - %s\n", i+1, verdict, r.Name)

		for _, line := range wrap(r.Details, width-3) {
			fmt.Fprintf(&sb, "   %s\n", line)
		}

		if r.Duration > 0 {
			fmt.Fprintf(&sb, "   %s\n", p.faint.Sprintf("Duration: %s", humanDuration(r.Duration)))
		}

		if opts.Verbose && len(r.Metrics) > 0 {
			for _, name := range r.Metrics.Names() {
				fmt.Fprintf(&sb, "     - %s: %d entries\n", name, len(r.Metrics[name]))
			}
		}
	}

	passed, total := 0, len(results)

	for _, r := range results {
		if r.Success {
			passed++
		}
	}

	pct := 0.0
	if total > 0 {
		pct = float64(passed) / float64(total) * 100
	}

	overall := fmt.Sprintf("Overall: %d/%d tests passed (%.0f%%)", passed, total, pct)
	if total > 0 && passed == total {
		overall = p.pass.Sprint(overall)
	} else {
		overall = p.fail.Sprint(overall)
	}

	fmt.Fprintln(&sb)
	fmt.Fprintln(&sb, rule)
	fmt.Fprintln(&sb, overall)
	fmt.Fprintln(&sb, rule)

	_, err := io.WriteString(w, sb.String())

	return err
}

// wrap breaks s into lines of at most width terminal cells.
func wrap(s string, width int) []string {
	if s == "" {
		return nil
	}

	if width < 20 {
		width = 20
	}

	var (
		lines []string
		cur   string
	)

	for _, word := range strings.Fields(s) {
		switch {
		case cur == "":
			cur = word
		case runewidth.StringWidth(cur)+1+runewidth.StringWidth(word) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}

		if runewidth.StringWidth(cur) > width {
			lines = append(lines, runewidth.Truncate(cur, width, "…"))
			cur = ""
		}
	}

	if cur != "" {
		lines = append(lines, cur)
	}

	return lines
}

func humanDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	return fmt.Sprintf("%.2fs", d.Seconds())
}
