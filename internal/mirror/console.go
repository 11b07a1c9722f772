package mirror

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

const consoleTimeFormat = "2006-01-02 15:04:05"

// Style returns text decorated with ANSI attributes.
//
// fg and bg may be zero for the terminal default.  When enabled is false
// text is returned unchanged.  The package-level color.NoColor setting
// is not consulted.
func Style(text string, fg, bg color.Attribute, bold, blink, enabled bool) string {
	if !enabled {
		return text
	}

	var attrs []color.Attribute
	if fg != 0 {
		attrs = append(attrs, fg)
	}
	if bg != 0 {
		attrs = append(attrs, bg)
	}
	if bold {
		attrs = append(attrs, color.Bold)
	}
	if blink {
		attrs = append(attrs, color.BlinkSlow)
	}
	if len(attrs) == 0 {
		return text
	}

	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}

// Console prints timestamped progress lines.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	colored bool
	quiet   bool
	now     func() time.Time
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer, colored, quiet bool) *Console {
	return &Console{
		w:       w,
		colored: colored,
		quiet:   quiet,
		now:     time.Now,
	}
}

func (c *Console) line(text string, stampBg color.Attribute, bold, blink bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := Style(c.now().Format(consoleTimeFormat), 0, stampBg, bold, blink, c.colored)
	fmt.Fprintf(c.w, "%s %s\n", stamp, text)
}

// Info prints an informational line.
func (c *Console) Info(text string) {
	if c.quiet {
		return
	}
	c.line(text, color.BgCyan, false, false)
}

// Warn prints a line highlighting a destructive action.
func (c *Console) Warn(text string) {
	if c.quiet {
		return
	}
	c.line(text, color.BgYellow, false, false)
}

// Fetch prints the line announcing a download.
func (c *Console) Fetch(url string) {
	if c.quiet {
		return
	}
	c.line("Get "+url, color.BgBlue, false, false)
}

// Entry prints the header of the i-th (1-based) of n catalog entries.
func (c *Console) Entry(i, n int, name, version string) {
	if c.quiet {
		return
	}
	text := fmt.Sprintf("%s %s %s",
		Style(fmt.Sprintf("%d/%d", i, n), color.FgBlack, color.BgWhite, false, false, c.colored),
		Style(name, 0, color.BgCyan, false, false, c.colored),
		Style(version, 0, color.BgGreen, false, false, c.colored),
	)
	c.line(text, color.BgCyan, false, false)
}

// Fatal prints a failure line.  It is printed even in quiet mode.
func (c *Console) Fatal(text string) {
	c.line(text, color.BgRed, true, true)
}

// Colored reports whether the console emits ANSI attributes.
func (c *Console) Colored() bool {
	return c.colored
}

// Quiet reports whether progress output is suppressed.
func (c *Console) Quiet() bool {
	return c.quiet
}

// Writer returns the underlying writer.
func (c *Console) Writer() io.Writer {
	return c.w
}
