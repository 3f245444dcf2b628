// Package protocol implements the TeamSpeak 3 ServerQuery wire format: line
// framing, argument parsing, escaping and outbound command rendering.
package protocol

import (
	"strconv"
	"strings"

	ts3 "github.com/multiplay/go-ts3"
)

// Delimiter separates protocol lines on the wire.
const Delimiter = "\n\r"

// escaper mirrors the go-ts3 encoder, which is only reachable through
// Cmd.String.
var escaper = strings.NewReplacer(
	`\`, `\\`,
	`/`, `\/`,
	" ", `\s`,
	"|", `\p`,
	"\a", `\a`,
	"\b", `\b`,
	"\f", `\f`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\v", `\v`,
)

// Escape encodes s so it can be used as a single argument value.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Unescape reverses Escape.
func Unescape(s string) string {
	return ts3.Decode(s)
}

// Args is one argument group of a protocol line.
type Args map[string]string

// Get returns the value stored under key, or "" when absent.
func (a Args) Get(key string) string {
	return a[key]
}

// Has reports whether key is present, even with an empty value.
func (a Args) Has(key string) bool {
	_, ok := a[key]

	return ok
}

// Int parses the value stored under key as a decimal integer.
func (a Args) Int(key string) (int, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}

	return n, true
}

// IntOr is Int with a fallback for missing or malformed values.
func (a Args) IntOr(key string, fallback int) int {
	if n, ok := a.Int(key); ok {
		return n
	}

	return fallback
}

// Clone returns a shallow copy of a.
func (a Args) Clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}

	return out
}

// Merge copies every key of other into a, overwriting existing values.
func (a Args) Merge(other Args) {
	for k, v := range other {
		a[k] = v
	}
}

// Parse splits a raw line into its argument groups. Malformed input yields
// whatever groups could be recovered.
func Parse(line string) []Args {
	parts := strings.Split(line, "|")
	groups := make([]Args, 0, len(parts))

	for _, part := range parts {
		groups = append(groups, parseGroup(part))
	}

	return groups
}

func parseGroup(s string) Args {
	args := make(Args)

	for _, token := range strings.Fields(s) {
		key, value, found := strings.Cut(token, "=")
		if !found {
			args[token] = ""
			continue
		}

		args[key] = Unescape(value)
	}

	return args
}

// ExpandGroups fills keys missing from later groups with the values of the
// first group. Grouped notifications only carry shared keys once.
func ExpandGroups(groups []Args) []Args {
	if len(groups) < 2 {
		return groups
	}

	head := groups[0]

	for _, group := range groups[1:] {
		for k, v := range head {
			if !group.Has(k) {
				group[k] = v
			}
		}
	}

	return groups
}

// Name returns the leading bare token of a line, e.g. "notifyclientmoved".
func Name(line string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	if strings.Contains(name, "=") {
		return ""
	}

	return strings.ToLower(name)
}
