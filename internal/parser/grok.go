package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// Grok-style building blocks used by the legacy line formats
var grokPatterns = map[string]string{
	// Base patterns
	"USERNAME":   `[a-zA-Z0-9._-]+`,
	"USER":       `%{USERNAME}`,
	"INT":        `(?:[+-]?(?:[0-9]+))`,
	"BASE10NUM":  `(?:[+-]?(?:[0-9]+(?:\.[0-9]+)?|\.[0-9]+))`,
	"NUMBER":     `(?:%{BASE10NUM})`,
	"POSINT":     `\b(?:[1-9][0-9]*)\b`,
	"WORD":       `\b\w+\b`,
	"NOTSPACE":   `\S+`,
	"DATA":       `.*?`,
	"GREEDYDATA": `.*`,

	// Date/Time patterns
	"MONTHNUM":          `(?:0?[1-9]|1[0-2])`,
	"MONTHDAY":          `(?:(?:0[1-9])|(?:[12][0-9])|(?:3[01])|[1-9])`,
	"MONTH":             `\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\b`,
	"YEAR":              `(?:\d\d){1,2}`,
	"HOUR":              `(?:2[0123]|[01]?[0-9])`,
	"MINUTE":            `(?:[0-5][0-9])`,
	"SECOND":            `(?:(?:[0-5]?[0-9]|60)(?:[:.,][0-9]+)?)`,
	"TIME":              `%{HOUR}:%{MINUTE}(?::%{SECOND})?`,
	"ISO8601_TIMEZONE":  `(?:Z|[+-]%{HOUR}(?::?%{MINUTE}))`,
	"TIMESTAMP_ISO8601": `%{YEAR}-%{MONTHNUM}-%{MONTHDAY}[T ]%{HOUR}:?%{MINUTE}(?::?%{SECOND})?%{ISO8601_TIMEZONE}?`,
	"HTTPDATE":          `%{MONTHDAY}/%{MONTH}/%{YEAR}:%{TIME} %{INT}`,
	"SYSLOGTIMESTAMP":   `%{MONTH} +%{MONTHDAY} %{TIME}`,

	// Network patterns
	"IPV4":     `(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)`,
	"IPV6":     `(?:[0-9A-Fa-f]{0,4}:){2,7}[0-9A-Fa-f]{0,4}`,
	"IP":       `(?:%{IPV4}|%{IPV6})`,
	"HOSTNAME": `\b(?:[0-9A-Za-z][0-9A-Za-z-]{0,62})(?:\.(?:[0-9A-Za-z][0-9A-Za-z-]{0,62}))*(?:\.?|\b)`,
	"IPORHOST": `(?:%{IP}|%{HOSTNAME})`,

	// Log level patterns
	"LOGLEVEL": `(?:DEBUG|TRACE|INFO|WARN(?:ING)?|ERROR|FATAL|CRITICAL)`,
}

var grokRef = regexp.MustCompile(`%\{([A-Z0-9_]+)(?::([a-z0-9_]+))?\}`)

// expandGrokPattern expands %{PATTERN} and %{PATTERN:field} references into
// a plain regular expression with named capture groups
func expandGrokPattern(pattern string) (string, error) {
	expanded := pattern
	maxIterations := 100 // Prevent infinite loops

	for i := 0; i < maxIterations; i++ {
		matches := grokRef.FindAllStringSubmatch(expanded, -1)
		if len(matches) == 0 {
			return expanded, nil
		}

		for _, match := range matches {
			patternName := match[1]
			fieldName := match[2]

			replacement, ok := grokPatterns[patternName]
			if !ok {
				return "", fmt.Errorf("unknown grok pattern: %s", patternName)
			}

			if fieldName != "" {
				replacement = fmt.Sprintf("(?P<%s>%s)", fieldName, replacement)
			}

			expanded = strings.Replace(expanded, match[0], replacement, 1)
		}
	}

	return "", fmt.Errorf("grok pattern %q did not converge", pattern)
}

// compileGrok expands and compiles a grok pattern anchored to the whole line
func compileGrok(pattern string) (*regexp.Regexp, error) {
	expanded, err := expandGrokPattern(pattern)
	if err != nil {
		return nil, err
	}

	re, err := regexp.Compile("^" + expanded + "$")
	if err != nil {
		return nil, fmt.Errorf("failed to compile expanded pattern: %w", err)
	}
	return re, nil
}

// namedGroups returns the named captures of a match
func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	fields := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i != 0 && name != "" && i < len(match) {
			fields[name] = match[i]
		}
	}
	return fields
}
