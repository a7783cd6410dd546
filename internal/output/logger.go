package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/torosent/loadgate/internal/metrics"
)

// OutcomeLogger prints one line per completed request, for example
// "3/10 ok - 0.12s" or "9/10 bad - Status: 500". It is safe for concurrent use.
type OutcomeLogger struct {
	mu    sync.Mutex
	w     io.Writer
	total int
	ok    *color.Color
	bad   *color.Color
}

// NewOutcomeLogger returns a logger writing to w. Colors are used only when w
// is a terminal and noColor is false.
func NewOutcomeLogger(w io.Writer, total int, noColor bool) *OutcomeLogger {
	l := &OutcomeLogger{
		w:     w,
		total: total,
		ok:    color.New(color.FgGreen),
		bad:   color.New(color.FgRed, color.Bold),
	}
	if noColor || !IsTerminal(w) {
		l.ok.DisableColor()
		l.bad.DisableColor()
	} else {
		l.ok.EnableColor()
		l.bad.EnableColor()
	}
	return l
}

// LogOutcome implements runner.OutcomeLogger.
func (l *OutcomeLogger) LogOutcome(o metrics.Outcome) {
	label := l.ok.Sprint("ok")
	if !o.Succeeded() {
		label = l.bad.Sprint("bad")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%d/%d %s - %s\n", o.Index, l.total, label, o.Detail())
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
