package common

import (
	"regexp"
)

// IOS prefixes log messages with a clock timestamp, an uptime stamp or
// nothing. A leading '*' or '.' marks a clock that is not authoritative.
var syslogLine = regexp.MustCompile(`^(?:(?:[*.]?[A-Z][a-z]{2} +\d{1,2} \d{2}:\d{2}:\d{2}(?:\.\d+)?(?: [A-Z]{3,4})?|\d{2}:\d{2}:\d{2}|\d+[wdh]\d+[dhm]): )?%[A-Z0-9_]+-[0-7]-[A-Z0-9_]+: `)

// IsSyslog reports whether a console line is an IOS log message rather than
// command output.
func IsSyslog(output string) bool {
	return syslogLine.MatchString(output)
}
