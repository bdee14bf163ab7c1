// Package regexpl implements the one active template regex per run: explicit,
// auto-numbered, auto-named, or none (see spec §4.2). It exposes a pure
// expand operation in two steps, Match then Substitute, which replaces
// literal {n}/{name} keys with strings.ReplaceAll, one key at a time. The
// idea comes from the {{ steps.X.y }} substitution in this codebase's
// ancestry, generalized to curly braces without the double-brace wrapper
// and to both numbered and named capture groups.
package regexpl

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode records which template synthesis rule produced the active pattern.
type Mode int

const (
	ModeNone Mode = iota
	ModeExplicit
	ModeAutoNumbered
	ModeAutoNamed
)

// Template is a compiled regex plus the literal substitution keys it exposes.
// A Template is stateless after construction and safe for concurrent use.
type Template struct {
	mode Mode
	re   *regexp.Regexp
}

// Compile compiles an explicit regex pattern into a Template.
func Compile(pattern string) (*Template, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling regex %q: %w", pattern, err)
	}
	return &Template{mode: ModeExplicit, re: re}, nil
}

// AutoNumbered synthesizes "(.*)( (.*))*" widened to n captured groups, one
// per argument group, space-joined: (.*) (.*) ... (.*).
func AutoNumbered(groupCount int) *Template {
	if groupCount <= 0 {
		groupCount = 1
	}
	parts := make([]string, groupCount)
	for i := range parts {
		parts[i] = "(.*)"
	}
	re := regexp.MustCompile(strings.Join(parts, " "))
	return &Template{mode: ModeAutoNumbered, re: re}
}

// AutoNamed synthesizes "(?P<name1>.*) (?P<name2>.*) ..." from the capture
// names consumed from the tokens following each ::: separator.
func AutoNamed(names []string) *Template {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("(?P<%s>.*)", n)
	}
	re := regexp.MustCompile(strings.Join(parts, " "))
	return &Template{mode: ModeAutoNamed, re: re}
}

// None reports that no template is active; regex_mode() in spec terms.
func None() *Template { return nil }

// Active reports whether a template is in effect.
func (t *Template) Active() bool { return t != nil }

// Mode reports which synthesis rule produced this template.
func (t *Template) Mode() Mode {
	if t == nil {
		return ModeNone
	}
	return t.mode
}

// Match evaluates the template against datum once per invocation. ok is
// false when no template is active or datum does not match; values[i] holds
// capture group i (0 is the whole match), ready to hand to Substitute for
// every argv element in turn.
func (t *Template) Match(datum string) (values []string, ok bool) {
	if t == nil {
		return nil, false
	}
	m := t.re.FindStringSubmatchIndex(datum)
	if m == nil {
		return nil, false
	}
	values = make([]string, len(m)/2)
	for i := range values {
		start, end := m[2*i], m[2*i+1]
		if start < 0 || end < 0 {
			continue
		}
		values[i] = datum[start:end]
	}
	return values, true
}

// Substitute replaces the literal keys present in element with values
// produced by Match. consumed reports whether element actually contained
// any known key — distinct from whether the template matched at all, since
// an invocation can match its datum while a particular argv element (e.g.
// the bare program name) contains no substitution key. The producer uses
// consumed, not the match result, to decide whether to append the trimmed
// input line as a trailing argument (spec §4.1 step 3).
func (t *Template) Substitute(element string, values []string) (result string, consumed bool) {
	if t == nil || values == nil {
		return element, false
	}
	out := element
	replace := func(key, val string) {
		if strings.Contains(element, key) {
			consumed = true
		}
		out = strings.ReplaceAll(out, key, val)
	}
	for i, v := range values {
		replace(fmt.Sprintf("{%d}", i), v)
		if i == 0 {
			replace("{}", v)
		}
	}
	for _, name := range t.re.SubexpNames() {
		if name == "" {
			continue
		}
		idx := t.re.SubexpIndex(name)
		if idx < 0 || idx >= len(values) {
			continue
		}
		replace("{"+name+"}", values[idx])
	}
	return out, consumed
}

// Keys returns the full set of literal substitution keys for t.
func (t *Template) Keys() []string {
	if t == nil {
		return nil
	}
	keys := []string{"{}"}
	for i := 0; i <= t.re.NumSubexp(); i++ {
		keys = append(keys, fmt.Sprintf("{%d}", i))
	}
	for _, name := range t.re.SubexpNames() {
		if name != "" {
			keys = append(keys, "{"+name+"}")
		}
	}
	return keys
}
