package main

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"   ", nil},
		{"get key", []string{"get", "key"}},
		{"  set   k  v  ", []string{"set", "k", "v"}},
		{`set k "hello world"`, []string{"set", "k", "hello world"}},
		{`set k 'it''s'`, []string{"set", "k", "its"}},
		{`set k 'it\'s'`, []string{"set", "k", "it's"}},
		{`set k ""`, []string{"set", "k", ""}},
		{`echo "a\"b"`, []string{"echo", `a"b`}},
		{`echo "line\nbreak\ttab"`, []string{"echo", "line\nbreak\ttab"}},
		{`echo "\x41\x00"`, []string{"echo", "A\x00"}},
		{`echo "\xZZ"`, []string{"echo", "xZZ"}},
		{`echo 'raw\n'`, []string{"echo", `raw\n`}},
		{`set key"with"quotes v`, []string{"set", "keywithquotes", "v"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := tokenize(tt.input)
			if err != nil {
				t.Fatalf("tokenize failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTokenize_Unbalanced(t *testing.T) {
	for _, input := range []string{`set k "open`, `set k 'open`} {
		if _, err := tokenize(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestPrinter(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, "(nil)\n"},
		{"string", "hello", "\"hello\"\n"},
		{"bytes", []byte("a\x00"), "\"a\\x00\"\n"},
		{"integer", int64(42), "(integer) 42\n"},
		{"double", 1.5, "(double) 1.5\n"},
		{"empty array", []any{}, "(empty array)\n"},
		{"array", []any{"a", int64(1), nil}, "1) \"a\"\n2) (integer) 1\n3) (nil)\n"},
		{"nested", []any{"a", []any{"b", "c"}}, "1) \"a\"\n2) 1) \"b\"\n   2) \"c\"\n"},
		{"map", map[string]string{"f2": "v2", "f1": "v1"}, "1) \"f1\"\n2) \"v1\"\n3) \"f2\"\n4) \"v2\"\n"},
		{"error", errors.New("ERR boom"), "(error) ERR boom\n"},
	}
	p := newPrinter(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p.print(&buf, tt.value)
			if buf.String() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, buf.String())
			}
		})
	}
}

func TestPrinter_IndexWidth(t *testing.T) {
	values := make([]any, 10)
	for i := range values {
		values[i] = int64(i)
	}
	var buf bytes.Buffer
	newPrinter(false).print(&buf, values)

	lines := bytes.Split(bytes.TrimSuffix(buf.Bytes(), []byte("\n")), []byte("\n"))
	if len(lines) != 10 {
		t.Fatalf("expected 10 lines, got %d", len(lines))
	}
	if string(lines[0]) != " 1) (integer) 0" {
		t.Errorf("expected padded index, got %q", lines[0])
	}
	if string(lines[9]) != "10) (integer) 9" {
		t.Errorf("expected %q, got %q", "10) (integer) 9", lines[9])
	}
}

func TestPrinter_Message(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(false)
	p.message(&buf, "", "news", []byte("hi"))
	p.message(&buf, "n*", "news", []byte("hi"))

	expected := "news: \"hi\"\n[n*] news: \"hi\"\n"
	if buf.String() != expected {
		t.Errorf("expected %q, got %q", expected, buf.String())
	}
}

func TestReplCompleter(t *testing.T) {
	c := &replCompleter{names: []string{"get", "getbuffer", "getdel", "set"}}

	candidates, length := c.Do([]rune("GETD"), 4)
	if length != 4 {
		t.Errorf("expected length 4, got %d", length)
	}
	if len(candidates) != 1 || string(candidates[0]) != "EL " {
		t.Errorf("expected [EL ], got %q", candidates)
	}

	candidates, _ = c.Do([]rune("get"), 3)
	if len(candidates) != 3 {
		t.Errorf("expected 3 candidates, got %d", len(candidates))
	}

	if candidates, _ := c.Do([]rune("get k"), 5); candidates != nil {
		t.Errorf("expected no completion after the command word, got %q", candidates)
	}
}

func TestLoadConfig_Flags(t *testing.T) {
	t.Setenv("KVSHIM_CONFIG", "")
	t.Setenv("KVSHIM_DRIVER", "")
	t.Setenv("REDIS_ADDRS", "")
	t.Setenv("POLL_INTERVAL", "")

	driverName, addr, debug = "redis", "a:1,b:2", true
	defer func() { driverName, addr, debug = "", "", false }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.RedisAddrs, []string{"a:1", "b:2"}) {
		t.Errorf("unexpected addresses %v", cfg.RedisAddrs)
	}
	if !cfg.Debug {
		t.Error("expected --debug to enable debug")
	}

	driverName = "etcd"
	if _, err := loadConfig(); err == nil {
		t.Error("expected error for unknown driver")
	}
}
