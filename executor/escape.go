package executor

import (
	"regexp"
	"strings"
)

var (
	shellSpecialWithSpace = regexp.MustCompile(`([\\!@#$%^&*()?'"|<>\[\]{} ])`)
	shellSpecial          = regexp.MustCompile(`([\\!@#$%^&*()?'"|<>\[\]{}])`)
)

// ShellEscape backslash-escapes every shell metacharacter in arg, including spaces
func ShellEscape(arg string) string {
	return shellSpecialWithSpace.ReplaceAllString(arg, `\$1`)
}

// ShellEscapeCommand escapes like ShellEscape but leaves spaces alone, so a command
// prefix such as "valgrind -q" keeps its word boundaries.
func ShellEscapeCommand(cmd string) string {
	return shellSpecial.ReplaceAllString(cmd, `\$1`)
}

// CommandString renders a command the way the supervisor expects to receive it
func CommandString(path string, args []string) string {
	escaped := make([]string, 0, len(args)+1)
	escaped = append(escaped, ShellEscapeCommand(path))
	for _, a := range args {
		escaped = append(escaped, ShellEscape(a))
	}
	return strings.Join(escaped, " ")
}
