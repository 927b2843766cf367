package postgres

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQL trace levels
const (
	traceOff       = 0
	traceImportant = 1 // DDL, TRUNCATE, NOTIFY and errors
	traceWrites    = 2 // plus INSERT, UPDATE, DELETE
	traceAll       = 3 // plus SELECT
)

// tracingQuerier logs statements that reach its trace level.
type tracingQuerier struct {
	q     Querier
	level int
}

func newTracingQuerier(q Querier, level int) *tracingQuerier {
	return &tracingQuerier{q: q, level: level}
}

// sqlLevel returns the minimum trace level at which a statement is logged.
func sqlLevel(sql string) int {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	switch {
	case strings.HasPrefix(upper, "TRUNCATE"),
		strings.HasPrefix(upper, "DROP"),
		strings.HasPrefix(upper, "ALTER"),
		strings.HasPrefix(upper, "LISTEN"),
		strings.HasPrefix(upper, "UNLISTEN"),
		strings.Contains(upper, "PG_NOTIFY"):
		return traceImportant
	case strings.HasPrefix(upper, "INSERT"),
		strings.HasPrefix(upper, "UPDATE"),
		strings.HasPrefix(upper, "DELETE"),
		strings.HasPrefix(upper, "CREATE"),
		strings.Contains(upper, "ON CONFLICT"):
		return traceWrites
	}
	return traceAll
}

func (t *tracingQuerier) shouldLog(sql string, failed bool) bool {
	if t.level <= traceOff {
		return false
	}
	return failed || t.level >= sqlLevel(sql)
}

func (t *tracingQuerier) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := t.q.Exec(ctx, sql, arguments...)
	if t.shouldLog(sql, err != nil) {
		if err != nil {
			log.Printf("[SQLTRACE] %s%s -> ERROR: %v (%v)", compact(sql), formatArgs(arguments), err, time.Since(start))
		} else {
			log.Printf("[SQLTRACE] %s%s -> %s (%v)", compact(sql), formatArgs(arguments), tag.String(), time.Since(start))
		}
	}
	return tag, err
}

func (t *tracingQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := t.q.Query(ctx, sql, args...)
	if t.shouldLog(sql, err != nil) {
		if err != nil {
			log.Printf("[SQLTRACE] %s%s -> ERROR: %v (%v)", compact(sql), formatArgs(args), err, time.Since(start))
		} else {
			log.Printf("[SQLTRACE] %s%s -> rows (%v)", compact(sql), formatArgs(args), time.Since(start))
		}
	}
	return rows, err
}

func (t *tracingQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	start := time.Now()
	row := t.q.QueryRow(ctx, sql, args...)
	if t.shouldLog(sql, false) {
		log.Printf("[SQLTRACE] %s%s (%v)", compact(sql), formatArgs(args), time.Since(start))
	}
	return row
}

// compact folds a multi-line statement onto one line.
func compact(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

// formatArgs renders bind arguments as " [$1=..., $2=...]".
func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("$%d=%s", i+1, formatArg(arg))
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

const maxTracedText = 100

func formatArg(arg any) string {
	switch v := arg.(type) {
	case string:
		return formatText(v)
	case []byte:
		return formatText(string(v))
	case [][]byte:
		return fmt.Sprintf("<%d values>", len(v))
	case []string:
		return fmt.Sprintf("<%d values>", len(v))
	case *time.Time:
		if v == nil {
			return "NULL"
		}
		return v.Format(time.RFC3339Nano)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case nil:
		return "NULL"
	}
	return fmt.Sprintf("%v", arg)
}

func formatText(s string) string {
	if isBinary(s) {
		return "<binary:" + formatSize(len(s)) + ">"
	}
	if len(s) > maxTracedText {
		return fmt.Sprintf("%q... (%s)", s[:maxTracedText], formatSize(len(s)))
	}
	return fmt.Sprintf("%q", s)
}

func formatSize(size int) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%dB", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(size)/1024)
	}
	return fmt.Sprintf("%.1fMB", float64(size)/(1024*1024))
}

// isBinary reports whether s holds invalid UTF-8 or control characters
// other than common whitespace.
func isBinary(s string) bool {
	if !utf8.ValidString(s) {
		return true
	}
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}
