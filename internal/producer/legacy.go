package producer

import (
	"fmt"
	"time"
)

// LegacyFormats lists the formats a legacy application mixes in one file
var LegacyFormats = []string{"apache", "custom", "syslog", "csv"}

// LegacyHeader is written at the top of a new legacy log file
const LegacyHeader = "# Multi-format log file"

// LegacyLine renders one request in the named format. Apache lines carry no
// duration. Unknown formats fall back to csv.
func LegacyLine(format string, now time.Time, status int, durationMs float64, pid int) string {
	level := "INFO"
	if status >= 500 {
		level = "ERROR"
	}

	switch format {
	case "apache":
		return fmt.Sprintf(`127.0.0.1 - - [%s] "GET /api/data HTTP/1.1" %d 2326`,
			now.Format("02/Jan/2006:15:04:05 -0700"), status)
	case "custom":
		return fmt.Sprintf("[%s] %s: Request processed | status=%d | duration=%.2fms",
			now.Format("2006-01-02 15:04:05"), level, status, durationMs)
	case "syslog":
		return fmt.Sprintf("%s localhost app[%d]: Request status=%d duration=%.2fms",
			now.Format(time.Stamp), pid, status, durationMs)
	default:
		return fmt.Sprintf("%s,%s,%d,%.2f",
			now.Format("2006-01-02T15:04:05.000000"), level, status, durationMs)
	}
}
