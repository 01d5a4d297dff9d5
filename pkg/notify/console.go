package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Console writes messages to a terminal, coloring lines by their icon.
type Console struct {
	out io.Writer
}

// NewConsole returns a Console writing to w, or stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{out: w}
}

var (
	consoleOK    = color.New(color.FgGreen)
	consoleError = color.New(color.FgRed, color.Bold)
	consoleWarn  = color.New(color.FgYellow)
	consoleInfo  = color.New(color.FgCyan)
)

// Deliver prints each line of text.
func (c *Console) Deliver(_ context.Context, text string) error {
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintln(c.out, consoleColor(line).Sprint(line)); err != nil {
			return fmt.Errorf("console: %w", err)
		}
	}
	return nil
}

func consoleColor(line string) *color.Color {
	switch {
	case strings.HasPrefix(line, iconOK):
		return consoleOK
	case strings.HasPrefix(line, iconError):
		return consoleError
	case strings.HasPrefix(line, iconWarn):
		return consoleWarn
	case strings.HasPrefix(line, iconInfo):
		return consoleInfo
	}
	return color.New(color.Reset)
}
