package postgres

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mnorrsken/kvshim/driver"
)

func TestConfig_ConnString(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "kv", Password: "secret", Database: "kvshim", SSLMode: "disable"}
	expected := "user=kv password=secret host=db port=5433 dbname=kvshim sslmode=disable"
	if got := cfg.ConnString(); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestPgChannel(t *testing.T) {
	long := strings.Repeat("c", 64)

	tests := []struct {
		name    string
		channel string
		hashed  bool
	}{
		{"short", "news", false},
		{"exactly 63 bytes", strings.Repeat("c", 63), false},
		{"64 bytes", long, true},
		{"NUL byte", "a\x00b", true},
		{"invalid utf8", "\xff\xfe", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pgChannel(tt.channel)
			if !tt.hashed {
				if got != tt.channel {
					t.Errorf("expected %q, got %q", tt.channel, got)
				}
				return
			}
			if !strings.HasPrefix(got, "h_") || len(got) != 42 {
				t.Errorf("expected hashed channel name, got %q", got)
			}
			if got != pgChannel(tt.channel) {
				t.Error("expected hashing to be stable")
			}
		})
	}

	if pgChannel(long) == pgChannel(long+"x") {
		t.Error("expected different channels to hash differently")
	}
}

func TestNeedsWrap(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		message string
		want    bool
	}{
		{"plain", "news", "hello", false},
		{"empty message", "news", "", false},
		{"hashed channel", strings.Repeat("c", 70), "hello", true},
		{"NUL byte", "news", "a\x00b", true},
		{"invalid utf8", "news", "\xff", true},
		{"looks wrapped", "news", wrappedPayloadPrefix + "abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsWrap(tt.channel, pgChannel(tt.channel), tt.message); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWrapPayload(t *testing.T) {
	channel := strings.Repeat("x", 80)
	message := "bin\x00\xffary"

	wrapped, err := wrapPayload(channel, message)
	if err != nil {
		t.Fatalf("wrapPayload failed: %v", err)
	}
	if !strings.HasPrefix(wrapped, wrappedPayloadPrefix) {
		t.Errorf("expected prefix, got %q", wrapped)
	}
	if strings.ContainsRune(wrapped, 0) {
		t.Error("expected wrapped payload without NUL bytes")
	}

	c, m, ok := unwrapPayload(wrapped)
	if !ok {
		t.Fatal("expected payload to unwrap")
	}
	if c != channel {
		t.Errorf("expected channel %q, got %q", channel, c)
	}
	if m != message {
		t.Errorf("expected message %q, got %q", message, m)
	}

	for _, plain := range []string{"hello", "", wrappedPayloadPrefix + "!!not base64"} {
		if _, _, ok := unwrapPayload(plain); ok {
			t.Errorf("expected %q not to unwrap", plain)
		}
	}
}

func TestSubscriberDispatch(t *testing.T) {
	long := strings.Repeat("l", 70)
	s := &subscriber{
		channels: map[string]struct{}{"news": {}, long: {}},
		patterns: []string{"news*", "sport.?"},
		byPg:     map[string]string{"news": "news", pgChannel(long): long},
	}

	wrappedLong, _ := wrapPayload(long, "for long")
	wrappedOther, _ := wrapPayload("other", "collision")
	fanNews, _ := wrapPayload("newsflash", "fan")
	fanSport, _ := wrapPayload("sport.1", "goal")

	s.dispatch("news", "plain")
	s.dispatch(pgChannel(long), wrappedLong)
	s.dispatch(pgChannel(long), wrappedOther)
	s.dispatch("unknown", "dropped")
	s.dispatch(patternChannel, fanNews)
	s.dispatch(patternChannel, fanSport)
	s.dispatch(patternChannel, "garbage")

	expected := []driver.Message{
		{Channel: "news", Payload: "plain"},
		{Channel: long, Payload: "for long"},
		{Channel: "newsflash", Pattern: "news*", Payload: "fan"},
		{Channel: "sport.1", Pattern: "sport.?", Payload: "goal"},
	}
	if !reflect.DeepEqual(s.queue, expected) {
		t.Errorf("expected %+v, got %+v", expected, s.queue)
	}
}

func TestCountSubscribers(t *testing.T) {
	d := &Driver{subs: make(map[*subscriber]struct{})}
	d.subs[&subscriber{channels: map[string]struct{}{"news": {}}}] = struct{}{}
	d.subs[&subscriber{channels: map[string]struct{}{"news": {}}, patterns: []string{"n*"}}] = struct{}{}
	d.subs[&subscriber{channels: map[string]struct{}{}, patterns: []string{"x*"}}] = struct{}{}

	if got := d.countSubscribers("news"); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := d.countSubscribers("xyz"); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := d.countSubscribers("none"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestLikePrefix(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"*", "%"},
		{"user:*", "user:%"},
		{"user:?", "user:%"},
		{"user:[ab]", "user:%"},
		{"exact", "exact"},
		{"100%_done*", `100\%\_done%`},
		{`a\*b*`, "a*b%"},
		{`back\\slash`, `back\\slash`},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			if got := likePrefix(tt.pattern); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSQLLevel(t *testing.T) {
	tests := []struct {
		sql  string
		want int
	}{
		{"TRUNCATE kv_meta", traceImportant},
		{"LISTEN kvshim_list_push", traceImportant},
		{"SELECT pg_notify($1, $2)", traceImportant},
		{"  insert into kv_strings VALUES ($1)", traceWrites},
		{"DELETE FROM kv_meta WHERE key = $1", traceWrites},
		{"SELECT value FROM kv_strings", traceAll},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			if got := sqlLevel(tt.sql); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestFormatArg(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var nilTime *time.Time

	tests := []struct {
		name string
		arg  any
		want string
	}{
		{"nil", nil, "NULL"},
		{"nil time", nilTime, "NULL"},
		{"time", ts, "2024-01-02T03:04:05Z"},
		{"time pointer", &ts, "2024-01-02T03:04:05Z"},
		{"int", 42, "42"},
		{"byte slices", [][]byte{[]byte("a"), []byte("b")}, "<2 values>"},
		{"strings", []string{"a", "b", "c"}, "<3 values>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatArg(tt.arg); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIsBinary(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"hello world", false},
		{"line\nbreak\ttab", false},
		{"héllo", false},
		{"a\x00b", true},
		{"\xff\xfe", true},
	}
	for _, tt := range tests {
		if got := isBinary(tt.in); got != tt.want {
			t.Errorf("isBinary(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestExpireAllowed(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Minute)
	later := now.Add(time.Minute)

	tests := []struct {
		name    string
		cond    driver.Condition
		current *time.Time
		want    bool
	}{
		{"none without ttl", driver.CondNone, nil, true},
		{"NX without ttl", driver.CondNX, nil, true},
		{"NX with ttl", driver.CondNX, &later, false},
		{"XX without ttl", driver.CondXX, nil, false},
		{"XX with ttl", driver.CondXX, &later, true},
		{"GT without ttl", driver.CondGT, nil, false},
		{"GT later deadline", driver.CondGT, &earlier, true},
		{"GT earlier deadline", driver.CondGT, &later, false},
		{"LT without ttl", driver.CondLT, nil, true},
		{"LT earlier deadline", driver.CondLT, &later, true},
		{"LT later deadline", driver.CondLT, &earlier, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expireAllowed(tt.cond, tt.current, now); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestZAddAllowed(t *testing.T) {
	tests := []struct {
		name   string
		args   driver.ZAddArgs
		exists bool
		old    float64
		next   float64
		want   bool
	}{
		{"plain new", driver.ZAddArgs{}, false, 0, 1, true},
		{"NX existing", driver.ZAddArgs{NX: true}, true, 1, 2, false},
		{"NX new", driver.ZAddArgs{NX: true}, false, 0, 2, true},
		{"XX new", driver.ZAddArgs{XX: true}, false, 0, 2, false},
		{"GT lower", driver.ZAddArgs{GT: true}, true, 5, 3, false},
		{"GT equal", driver.ZAddArgs{GT: true}, true, 5, 5, false},
		{"GT higher", driver.ZAddArgs{GT: true}, true, 5, 7, true},
		{"GT new", driver.ZAddArgs{GT: true}, false, 0, -1, true},
		{"LT higher", driver.ZAddArgs{LT: true}, true, 5, 7, false},
		{"LT lower", driver.ZAddArgs{LT: true}, true, 5, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := zaddAllowed(tt.args, tt.exists, tt.old, tt.next); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRangeFilter_Scores(t *testing.T) {
	tests := []struct {
		name     string
		min, max string
		where    string
		args     []any
	}{
		{"unbounded", "-inf", "+inf", "key = $1", []any{"z"}},
		{"inclusive", "1", "5", "key = $1 AND score >= $2 AND score <= $3", []any{"z", 1.0, 5.0}},
		{"exclusive", "(1", "(5", "key = $1 AND score > $2 AND score < $3", []any{"z", 1.0, 5.0}},
		{"open top", "(2", "+inf", "key = $1 AND score > $2", []any{"z", 2.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRangeFilter("z")
			if err := f.scores(tt.min, tt.max); err != nil {
				t.Fatalf("scores failed: %v", err)
			}
			if f.where != tt.where {
				t.Errorf("expected %q, got %q", tt.where, f.where)
			}
			if !reflect.DeepEqual(f.args, tt.args) {
				t.Errorf("expected args %v, got %v", tt.args, f.args)
			}
		})
	}

	f := newRangeFilter("z")
	if err := f.scores("abc", "1"); err == nil {
		t.Error("expected error for invalid boundary")
	}
}

func TestRangeFilter_Lex(t *testing.T) {
	f := newRangeFilter("z")
	if err := f.lex("[a", "(c"); err != nil {
		t.Fatalf("lex failed: %v", err)
	}
	expected := "key = $1 AND member >= $2 AND member < $3"
	if f.where != expected {
		t.Errorf("expected %q, got %q", expected, f.where)
	}

	f = newRangeFilter("z")
	if err := f.lex("+", "-"); err != nil {
		t.Fatalf("lex failed: %v", err)
	}
	if !f.empty {
		t.Error("expected inverted infinite range to be empty")
	}

	f = newRangeFilter("z")
	if err := f.lex("a", "+"); err == nil {
		t.Error("expected error for boundary without [ or (")
	}
}

func TestRangeFilter_Window(t *testing.T) {
	f := newRangeFilter("z")
	got := f.window(true, 2, 10)
	expected := " ORDER BY score DESC, member DESC LIMIT $2 OFFSET $3"
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
	if !reflect.DeepEqual(f.args, []any{"z", int64(10), int64(2)}) {
		t.Errorf("unexpected args %v", f.args)
	}

	f = newRangeFilter("z")
	if got := f.window(false, 0, -1); got != " ORDER BY score ASC, member ASC" {
		t.Errorf("expected no LIMIT, got %q", got)
	}
}

func TestScoresOf(t *testing.T) {
	vals, err := scoresOf([]driver.ScoredMember{{Score: "1.5", Member: "a"}, {Score: "+inf", Member: "b"}})
	if err != nil {
		t.Fatalf("scoresOf failed: %v", err)
	}
	if vals[0] != 1.5 || !math.IsInf(vals[1], 1) {
		t.Errorf("unexpected scores %v", vals)
	}

	if _, err := scoresOf([]driver.ScoredMember{{Score: "abc", Member: "a"}}); err == nil {
		t.Error("expected error for non-float score")
	}
}
