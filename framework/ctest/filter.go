package ctest

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Filter determines whether to run a specific test or not.
type Filter interface {
	Match(id TestID) bool
}

// SelfDescribingFilter is a Filter that can explain itself at the start of a run.
type SelfDescribingFilter interface {
	Filter
	Describe(out io.Writer)
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(TestID) bool

func (f FilterFunc) Match(id TestID) bool { return f(id) }

// SubstringFilter selects tests whose ID contains the string. An empty SubstringFilter matches
// everything, and so does an empty ID (the root scope).
type SubstringFilter string

func (s SubstringFilter) Match(id TestID) bool {
	return s == "" || len(id) == 0 || strings.Contains(id.String(), string(s))
}

// AllFilters matches a test only if every filter in the list matches it.
type AllFilters []Filter

func (a AllFilters) Match(id TestID) bool {
	for _, f := range a {
		if f != nil && !f.Match(id) {
			return false
		}
	}
	return true
}

func (a AllFilters) Describe(out io.Writer) {
	var lines []string
	for _, f := range a {
		switch f := f.(type) {
		case SubstringFilter:
			if f != "" {
				lines = append(lines, fmt.Sprintf("  skip any not containing %q", string(f)))
			}
		case RegexFilters:
			if f.MustMatch.IsDefined() {
				lines = append(lines, fmt.Sprintf("  skip any not matching %s", f.MustMatch))
			}
			if f.MustNotMatch.IsDefined() {
				lines = append(lines, fmt.Sprintf("  skip any matching %s", f.MustNotMatch))
			}
		}
	}
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(out, "Some test cases will be skipped based on the filter criteria for this test run:")
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
}

type RegexFilters struct {
	MustMatch    TestIDPatternList
	MustNotMatch TestIDPatternList
}

func (r RegexFilters) Match(id TestID) bool {
	return (!r.MustMatch.IsDefined() || r.MustMatch.AnyMatch(id, true)) &&
		!r.MustNotMatch.AnyMatch(id, false)
}

type TestIDPattern []*regexp.Regexp

func (p TestIDPattern) Match(id TestID, includeParents bool) bool {
	n := len(p)
	if n > len(id) {
		if !includeParents {
			return false
		}
		n = len(id)
	}
	for i := 0; i < n; i++ {
		if !p[i].MatchString(id[i]) {
			return false
		}
	}
	return true
}

func (p TestIDPattern) String() string {
	ss := make([]string, 0, len(p))
	for _, c := range p {
		ss = append(ss, c.String())
	}
	return strings.Join(ss, "/")
}

func ParseTestIDPattern(s string) (TestIDPattern, error) {
	parts := strings.Split(s, "/")
	ret := make(TestIDPattern, 0, len(parts))
	for _, part := range parts {
		rx, err := regexp.Compile(part)
		if err != nil {
			return nil, fmt.Errorf("invalid regex: %w", err)
		}
		ret = append(ret, rx)
	}
	return ret, nil
}

type TestIDPatternList []TestIDPattern

func (l TestIDPatternList) String() string {
	ss := make([]string, 0, len(l))
	for _, p := range l {
		ss = append(ss, `"`+p.String()+`"`)
	}
	return strings.Join(ss, " or ")
}

// Set parses a pattern and adds it to the list. It is called by the command line parser.
func (l *TestIDPatternList) Set(value string) error {
	p, err := ParseTestIDPattern(value)
	if err != nil {
		return err
	}
	*l = append(*l, p)
	return nil
}

// Type is required by pflag.Value.
func (l *TestIDPatternList) Type() string { return "pattern" }

func (l TestIDPatternList) IsDefined() bool {
	return len(l) != 0
}

func (l TestIDPatternList) AnyMatch(id TestID, includeParents bool) bool {
	for _, p := range l {
		if p.Match(id, includeParents) {
			return true
		}
	}
	return false
}
