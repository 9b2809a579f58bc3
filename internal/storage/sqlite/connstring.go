package sqlite

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ConnString builds a SQLite connection string with standard pragmas.
//
// Honors PRIO_LOCK_TIMEOUT for busy_timeout (default 30s). If path is
// already a file: URI, pragmas are appended only if absent.
func ConnString(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	busy := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("PRIO_LOCK_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			busy = d
		}
	}
	busyMs := int64(busy / time.Millisecond)

	if path == ":memory:" {
		return fmt.Sprintf("file::memory:?mode=memory&cache=private&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)", busyMs)
	}

	if strings.HasPrefix(path, "file:") {
		conn := path
		sep := "?"
		if strings.Contains(conn, "?") {
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=busy_timeout") {
			conn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, busyMs)
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=foreign_keys") {
			conn += sep + "_pragma=foreign_keys(ON)"
		}
		return conn
	}

	return fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)", path, busyMs)
}
