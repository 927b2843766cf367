package codec

import (
	"bytes"
	"testing"
)

func TestGet(t *testing.T) {
	for _, name := range append(Names, "", "GZIP") {
		if _, err := Get(name); err != nil {
			t.Errorf("Get(%q) failed: %v", name, err)
		}
	}
	if _, err := Get("zstd"); err == nil {
		t.Error("expected error for unknown codec")
	}
}

func TestCodecs(t *testing.T) {
	payload := []byte("hello, \x00 binary world hello world hello world")

	for _, name := range Names {
		t.Run(name, func(t *testing.T) {
			c, err := Get(name)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			encoded, err := c.Encode(payload)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			decoded, err := c.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !bytes.Equal(decoded, payload) {
				t.Errorf("expected %q, got %q", payload, decoded)
			}
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"base64", "!!not base64"},
		{"gzip", "not gzip"},
		{"snappy", "\xff\xff\xff\xff\xff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := Get(tt.name)
			if _, err := c.Decode([]byte(tt.input)); err == nil {
				t.Errorf("expected error decoding %q", tt.input)
			}
		})
	}
}

func TestBase64_TrimsWhitespace(t *testing.T) {
	c, _ := Get("base64")
	out, err := c.Decode([]byte("aGk=\n"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if string(out) != "hi" {
		t.Errorf("expected %q, got %q", "hi", out)
	}
}
