// Package canopylog prints canopyd's human-readable startup banner and
// status lines: the terminal-facing counterpart to the structured slog
// output internal/logging sends to the log file.
package canopylog

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/canopy-project/canopy/pkg/version"
)

// IsTTY reports whether w is a terminal, the same test ui.IsTTY runs
// before choosing between a TUI and a plain renderer.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Banner writes canopyd's startup banner to w: version, listen address, and
// the repo root the daemon was launched against. Colorized on a TTY (and
// when NO_COLOR isn't set), plain text otherwise.
func Banner(w io.Writer, addr, root string) {
	useColor := IsTTY(w) && os.Getenv("NO_COLOR") == ""

	title := fmt.Sprintf("canopyd %s", version.Short())
	if useColor {
		title = color.New(color.FgGreen, color.Bold).Sprint(title)
	}

	fmt.Fprintf(w, "%s\n", title)
	fmt.Fprintf(w, "  listening on %s\n", addr)
	fmt.Fprintf(w, "  repo root    %s\n", root)
}

// Status writes a single "tag: message" status line, used for the handful
// of one-off announcements (reindex triggered, shutdown signal received)
// that don't belong in the structured log but are worth a human glancing
// at the terminal.
func Status(w io.Writer, tag, msg string) {
	useColor := IsTTY(w) && os.Getenv("NO_COLOR") == ""

	label := tag
	if useColor {
		label = color.New(color.FgCyan).Sprint(tag)
	}
	fmt.Fprintf(w, "%s: %s\n", label, msg)
}

// Error writes a red "error: message" status line.
func Error(w io.Writer, msg string) {
	useColor := IsTTY(w) && os.Getenv("NO_COLOR") == ""

	label := "error"
	if useColor {
		label = color.New(color.FgRed, color.Bold).Sprint("error")
	}
	fmt.Fprintf(w, "%s: %s\n", label, msg)
}
