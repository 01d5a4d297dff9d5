package notify

import (
	"fmt"
	"os"
	"strings"
)

const (
	iconComputer = "\U0001F4BB"
	iconOK       = "✅"
	iconError    = "❎"
	iconWarn     = "⚠️"
	iconInfo     = "ℹ"
	iconPoint    = "☝"
)

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// EscapeMarkdown backslash-escapes the characters Telegram's legacy
// Markdown mode treats as entity delimiters.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Formatter renders queued messages and the end-of-cycle summary.
type Formatter interface {
	Format(text string, tag Tag) string
	Summary(count int) string
}

// HostFormatter prefixes every message with the host name and an icon for
// its tag. Output uses Telegram Markdown.
type HostFormatter struct {
	Hostname string
}

// NewHostFormatter returns a HostFormatter for the local host.
func NewHostFormatter() HostFormatter {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "localhost"
	}
	return HostFormatter{Hostname: name}
}

// Format returns "<icon> 💻 \[host]: text". The host and text are
// escaped so check output is never parsed as Markdown.
func (f HostFormatter) Format(text string, tag Tag) string {
	msg := fmt.Sprintf("%s \\[%s]: %s", iconComputer, EscapeMarkdown(f.Hostname), EscapeMarkdown(text))
	switch tag {
	case TagOK:
		return iconOK + " " + msg
	case TagError:
		return iconError + " " + msg
	case TagWarn:
		return iconWarn + " " + msg
	}
	return msg
}

// Summary returns the line sent after a cycle that produced count messages.
func (f HostFormatter) Summary(count int) string {
	return fmt.Sprintf("%s Summary *%s*, get *%d* new Message. %s%s%s",
		iconInfo, EscapeMarkdown(f.Hostname), count, iconPoint, iconPoint, iconPoint)
}

// PlainFormatter passes text through unchanged.
type PlainFormatter struct{}

// Format returns text.
func (PlainFormatter) Format(text string, _ Tag) string { return text }

// Summary returns a short count line.
func (PlainFormatter) Summary(count int) string {
	return fmt.Sprintf("summary: %d new message(s)", count)
}
