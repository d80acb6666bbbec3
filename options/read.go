package options

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidInteger is wrapped by ReadInteger when the first line is not an integer
	ErrInvalidInteger = errors.New("invalid integer value")
	// ErrNoValue is wrapped by ReadInteger when the file holds only comments
	ErrNoValue = errors.New("no value")
)

var envVarRe = regexp.MustCompile(`\$(\w+|\{[^}]*\})`)

// ExpandVars replaces $NAME and ${NAME} with values from lookup. Unknown variables are
// left untouched.
func ExpandVars(s string, lookup func(string) (string, bool)) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return envVarRe.ReplaceAllStringFunc(s, func(m string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(m[1:], "{"), "}")
		if v, ok := lookup(name); ok {
			return v
		}
		return m
	})
}

// ReadFileWithComments returns the meaningful lines of an option file. Blank lines and
// comments are dropped and environment variables expanded. With ignoreLeadingSpace a
// line is a comment when its first non-blank character is '#'; otherwise only a '#' in
// the first column counts, so "opts #name.good" survives.
func ReadFileWithComments(path string, ignoreLeadingSpace bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		probe := line
		if ignoreLeadingSpace {
			probe = strings.TrimLeft(line, " \t")
		}
		if strings.HasPrefix(probe, "#") {
			continue
		}
		lines = append(lines, ExpandVars(line, os.LookupEnv))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// ReadInteger parses the first meaningful line of path as an integer
func ReadInteger(path string) (int, error) {
	lines, err := ReadFileWithComments(path, true)
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, fmt.Errorf("%w in %s", ErrNoValue, path)
	}
	n, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, fmt.Errorf("%w in %s: %q", ErrInvalidInteger, path, lines[0])
	}
	return n, nil
}

// ReadWords returns the whitespace separated words of the meaningful lines of a file
func ReadWords(path string) ([]string, error) {
	lines, err := ReadFileWithComments(path, true)
	if err != nil {
		return nil, err
	}
	var words []string
	for _, line := range lines {
		words = append(words, strings.Fields(line)...)
	}
	return words, nil
}

// ReadFirstLine returns the first line of a file, trimmed
func ReadFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	return "", scanner.Err()
}
