package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// errCommandFailed is returned by commands whose error reply was printed.
var errCommandFailed = errors.New("command failed")

var (
	colorString  = color.New(color.FgHiBlue)
	colorInteger = color.New(color.FgHiGreen)
	colorError   = color.New(color.FgRed, color.Bold)
	colorNull    = color.New(color.FgHiBlack)
	colorIndex   = color.New(color.FgHiBlack)
	colorChannel = color.New(color.FgHiYellow)
)

// printer renders legacy reply values the way redis-cli does.
type printer struct {
	color bool
}

func newPrinter(useColor bool) *printer {
	return &printer{color: useColor}
}

func (p *printer) paint(w io.Writer, c *color.Color, s string) {
	if p.color {
		c.Fprint(w, s)
		return
	}
	fmt.Fprint(w, s)
}

func (p *printer) print(w io.Writer, v any) {
	p.value(w, v, "")
}

func (p *printer) printError(w io.Writer, err error) {
	p.paint(w, colorError, "(error) "+err.Error())
	fmt.Fprintln(w)
}

// value writes v followed by a newline. Nested lines start with indent.
func (p *printer) value(w io.Writer, v any, indent string) {
	switch x := v.(type) {
	case nil:
		p.paint(w, colorNull, "(nil)")
	case string:
		p.paint(w, colorString, strconv.Quote(x))
	case []byte:
		p.paint(w, colorString, strconv.Quote(string(x)))
	case int64:
		p.paint(w, colorInteger, "(integer) "+strconv.FormatInt(x, 10))
	case int:
		p.paint(w, colorInteger, "(integer) "+strconv.Itoa(x))
	case float64:
		p.paint(w, colorInteger, "(double) "+strconv.FormatFloat(x, 'g', -1, 64))
	case bool:
		if x {
			p.paint(w, colorInteger, "(integer) 1")
		} else {
			p.paint(w, colorInteger, "(integer) 0")
		}
	case error:
		p.paint(w, colorError, "(error) "+x.Error())
	case []any:
		p.array(w, x, indent)
		return
	case map[string]string:
		p.array(w, flattenMap(x), indent)
		return
	case map[string][]byte:
		p.array(w, flattenMap(x), indent)
		return
	case map[string]any:
		p.array(w, flattenMap(x), indent)
		return
	default:
		fmt.Fprintf(w, "%v", x)
	}
	fmt.Fprintln(w)
}

func (p *printer) array(w io.Writer, values []any, indent string) {
	if len(values) == 0 {
		p.paint(w, colorNull, "(empty array)")
		fmt.Fprintln(w)
		return
	}
	width := len(strconv.Itoa(len(values)))
	for i, v := range values {
		if i > 0 {
			fmt.Fprint(w, indent)
		}
		idx := fmt.Sprintf("%*d) ", width, i+1)
		p.paint(w, colorIndex, idx)
		p.value(w, v, indent+strings.Repeat(" ", len(idx)))
	}
}

// flattenMap turns a map reply into key/value pairs ordered by key.
func flattenMap[V any](m map[string]V) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, 2*len(m))
	for _, k := range keys {
		out = append(out, k, any(m[k]))
	}
	return out
}

// message writes one pub/sub delivery on a single line.
func (p *printer) message(w io.Writer, pattern, channel string, payload []byte) {
	if pattern != "" {
		p.paint(w, colorIndex, "["+pattern+"] ")
	}
	p.paint(w, colorChannel, channel)
	fmt.Fprint(w, ": ")
	p.paint(w, colorString, strconv.Quote(string(payload)))
	fmt.Fprintln(w)
}
