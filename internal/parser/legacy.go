package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/metricsadapter/pkg/types"
)

// ErrComment marks '#' comment lines, such as the header legacy apps write
// when they create their log file. Callers skip them like blank lines.
var ErrComment = errors.New("comment line")

// Legacy line formats
const (
	FormatApache = "apache"
	FormatCustom = "custom"
	FormatSyslog = "syslog"
	FormatCSV    = "csv"
)

// Line shapes written by the legacy application, tried in order
var legacyFormats = []struct {
	name    string
	pattern string
}{
	// 127.0.0.1 - - [10/Oct/2000:13:55:36 -0700] "GET /api/data HTTP/1.1" 200 2326
	{FormatApache, `%{IPORHOST:client} %{USER:ident} %{USER:auth} \[%{HTTPDATE:timestamp}\] "%{WORD:verb} %{NOTSPACE:request}(?: HTTP/%{NUMBER:httpversion})?" %{INT:status} (?:%{INT:bytes}|-)`},
	// [2024-01-15 10:30:45] INFO: Request processed | status=200 | duration=45.00ms
	{FormatCustom, `\[%{TIMESTAMP_ISO8601:timestamp}\] %{LOGLEVEL:level}: %{DATA:message} \| status=%{INT:status} \| duration=%{BASE10NUM:duration}ms`},
	// Jan 15 10:30:45 localhost app[12345]: Request status=200 duration=45.00ms
	{FormatSyslog, `%{SYSLOGTIMESTAMP:timestamp} %{IPORHOST:host} %{DATA:program}(?:\[%{POSINT:pid}\])?: %{DATA:message} ?status=%{INT:status} duration=%{BASE10NUM:duration}ms`},
	// 2024-01-15T10:30:45.123456,INFO,200,45.00
	{FormatCSV, `%{TIMESTAMP_ISO8601:timestamp},%{LOGLEVEL:level},%{INT:status},%{BASE10NUM:duration}`},
}

// LegacyDecoder decodes the mixed apache/custom/syslog/csv lines of a legacy
// application into request observations
type LegacyDecoder struct {
	formats []compiledFormat
}

type compiledFormat struct {
	name string
	re   *regexp.Regexp
}

// NewLegacyDecoder compiles the legacy line formats
func NewLegacyDecoder() (*LegacyDecoder, error) {
	d := &LegacyDecoder{}
	for _, f := range legacyFormats {
		re, err := compileGrok(f.pattern)
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", f.name, err)
		}
		d.formats = append(d.formats, compiledFormat{name: f.name, re: re})
	}
	return d, nil
}

// Decode parses a single legacy line
func (d *LegacyDecoder) Decode(line string) (types.LegacyRequest, error) {
	var req types.LegacyRequest

	line = strings.TrimSpace(line)
	if line == "" {
		return req, ErrBlankLine
	}
	if strings.HasPrefix(line, "#") {
		return req, ErrComment
	}

	for _, f := range d.formats {
		match := f.re.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		fields := namedGroups(f.re, match)

		req.Format = f.name
		req.Level = NormalizeLogLevel(fields["level"])

		status, err := strconv.Atoi(fields["status"])
		if err != nil || status < 100 || status > 599 {
			return req, fieldError("status", "is not an HTTP status code")
		}
		req.Status = status

		if raw, ok := fields["duration"]; ok && raw != "" {
			duration, err := strconv.ParseFloat(raw, 64)
			if err != nil || duration < 0 {
				return req, fieldError("duration", "is not a non-negative number")
			}
			req.DurationMs = duration
			req.HasTiming = true
		}

		return req, nil
	}

	return req, syntaxError("line matches no known format", nil)
}

// Name returns the decoder name
func (d *LegacyDecoder) Name() string {
	return "legacy"
}

// NormalizeLogLevel normalizes log level strings to standard values
func NormalizeLogLevel(level string) string {
	switch level {
	case "DEBUG", "debug", "TRACE", "trace":
		return "debug"
	case "INFO", "info", "information", "INFORMATION":
		return "info"
	case "WARN", "warn", "WARNING", "warning":
		return "warn"
	case "ERROR", "error", "ERR", "err":
		return "error"
	case "FATAL", "fatal", "CRITICAL", "critical", "PANIC", "panic":
		return "fatal"
	default:
		return level
	}
}

// Skippable reports whether err marks a line that should be ignored
// without counting it as an error
func Skippable(err error) bool {
	return errors.Is(err, ErrBlankLine) || errors.Is(err, ErrComment)
}
