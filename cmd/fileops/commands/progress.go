package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/vulntor/fileops/cmd/fileops/internal/format"
	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/stringutil"
)

const (
	barWidth      = 24
	itemNameWidth = 40
)

var (
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	percentStyle = lipgloss.NewStyle().Bold(true)
	itemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// progressView redraws a single status line on an interactive stderr.
type progressView struct {
	w       io.Writer
	enabled bool
	styled  bool
	drawn   bool
}

func newProgressView(out format.Formatter) *progressView {
	w := out.Stderr()
	return &progressView{
		w:       w,
		enabled: !out.IsQuiet() && !out.IsJSON() && isTerminal(w),
		styled:  out.ColorEnabled(),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Update redraws the line for e.
func (p *progressView) Update(e job.ProgressEvent) {
	if !p.enabled {
		return
	}
	bar, pct, detail := progressParts(e, barWidth)
	if p.styled {
		bar = barStyle.Render(bar)
		pct = percentStyle.Render(pct)
		detail = itemStyle.Render(detail)
	}
	_, _ = fmt.Fprintf(p.w, "\r\033[K%s %s  %s", bar, pct, detail)
	p.drawn = true
}

// Clear erases the line so summaries start on a clean row.
func (p *progressView) Clear() {
	if !p.drawn {
		return
	}
	_, _ = fmt.Fprint(p.w, "\r\033[K")
	p.drawn = false
}

// progressParts renders the bar, the percentage and the byte counts with
// the current item name. Jobs without a byte total show item counts.
func progressParts(e job.ProgressEvent, width int) (bar, pct, detail string) {
	done, total := e.Progress.ProcessedBytes, e.Totals.Bytes
	byItems := total <= 0 && e.Totals.Items > 0
	if byItems {
		done, total = e.Progress.ProcessedItems, e.Totals.Items
	}

	percent := job.Percent(e.Totals, e.Progress)

	filled := int(percent / 100 * float64(width))
	bar = "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
	pct = fmt.Sprintf("%3.0f%%", percent)

	switch {
	case byItems:
		detail = fmt.Sprintf("%d/%d items", done, total)
	case total > 0:
		detail = fmt.Sprintf("%s / %s", format.Bytes(done), format.Bytes(total))
	default:
		detail = string(e.Status)
	}
	if name := e.Progress.CurrentItemName; name != "" {
		detail += "  " + stringutil.MiddleEllipsis(name, itemNameWidth)
	}
	return bar, pct, detail
}
