// Package style renders terminal output for the command line.
package style

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Config controls output styling.
type Config struct {
	UseColors  bool
	UseUnicode bool
}

// DefaultConfig enables colors when f is a terminal and neither NO_COLOR nor
// TERM=dumb says otherwise.
func DefaultConfig(f *os.File) Config {
	useColors := f != nil && term.IsTerminal(int(f.Fd()))
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		useColors = false
	}
	return Config{UseColors: useColors, UseUnicode: true}
}

// Styler formats text according to its Config.
type Styler struct {
	config Config

	bold    lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	info    lipgloss.Style
	accent  lipgloss.Style
}

// NewStyler returns a Styler for config.
func NewStyler(config Config) *Styler {
	return &Styler{
		config:  config,
		bold:    lipgloss.NewStyle().Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		info:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		accent:  lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	}
}

func (s *Styler) render(st lipgloss.Style, text string) string {
	if !s.config.UseColors {
		return text
	}
	return st.Render(text)
}

func (s *Styler) Bold(text string) string    { return s.render(s.bold, text) }
func (s *Styler) Muted(text string) string   { return s.render(s.muted, text) }
func (s *Styler) Success(text string) string { return s.render(s.success, text) }
func (s *Styler) Warning(text string) string { return s.render(s.warning, text) }
func (s *Styler) Error(text string) string   { return s.render(s.failure, text) }
func (s *Styler) Info(text string) string    { return s.render(s.info, text) }

// Highlight is used for names: steps, fields, files.
func (s *Styler) Highlight(text string) string { return s.render(s.accent, text) }

// Severity renders a severity label in its color. Unknown severities are
// returned as they are.
func (s *Styler) Severity(severity string) string {
	switch severity {
	case "fatal", "error":
		return s.Error(severity)
	case "warning":
		return s.Warning(severity)
	case "info":
		return s.Info(severity)
	}
	return severity
}

// SuccessIcon returns a check mark.
func (s *Styler) SuccessIcon() string {
	if !s.config.UseUnicode {
		return "[OK]"
	}
	return s.Success("✓")
}

// ErrorIcon returns a cross.
func (s *Styler) ErrorIcon() string {
	if !s.config.UseUnicode {
		return "[FAIL]"
	}
	return s.Error("✗")
}

// WarningIcon returns a warning sign.
func (s *Styler) WarningIcon() string {
	if !s.config.UseUnicode {
		return "[WARN]"
	}
	return s.Warning("⚠")
}

// TreeBranch returns the connector drawn before a tree item.
func (s *Styler) TreeBranch(isLast bool) string {
	if !s.config.UseUnicode {
		if isLast {
			return "`-- "
		}
		return "|-- "
	}
	if isLast {
		return s.Muted("└── ")
	}
	return s.Muted("├── ")
}

// TreePipe returns the continuation drawn below a non-last tree item.
func (s *Styler) TreePipe(isLast bool) string {
	if isLast {
		return "    "
	}
	if !s.config.UseUnicode {
		return "|   "
	}
	return s.Muted("│   ")
}
