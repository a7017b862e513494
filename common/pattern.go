package common

import (
	"regexp"
)

// Pattern is a stop condition for ReadLine. It matches when the line buffer
// read so far matches starting at its first character, so a pattern can hit
// before the line terminator arrives.
type Pattern struct {
	text string
	re   *regexp.Regexp
}

// Prefix matches lines starting with s, taken literally.
func Prefix(s string) Pattern {
	return Pattern{text: s, re: regexp.MustCompile("^" + regexp.QuoteMeta(s))}
}

// Regex matches lines where expr matches at position 0. Use a leading ".*"
// to find the text anywhere in the line.
func Regex(expr string) Pattern {
	return Pattern{text: expr, re: regexp.MustCompile("^(?:" + expr + ")")}
}

func (p Pattern) Match(line string) bool {
	return p.re != nil && p.re.MatchString(line)
}

func (p Pattern) String() string {
	return p.text
}
