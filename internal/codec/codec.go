// Package codec decodes and encodes message payloads for display. Applications
// often publish compressed or base64 payloads; tail uses a Codec to show
// them as text.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
)

// Codec converts payload bytes in both directions.
type Codec interface {
	Encode([]byte) ([]byte, error)
	Decode([]byte) ([]byte, error)
}

// Names lists the codecs Get accepts.
var Names = []string{"none", "base64", "gzip", "snappy"}

// Get returns a codec by name. An empty name or "none" passes payloads
// through unchanged.
func Get(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return identity{}, nil
	case "base64":
		return base64Codec{}, nil
	case "gzip":
		return gzipCodec{}, nil
	case "snappy":
		return snappyCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q (want one of %s)", name, strings.Join(Names, ", "))
}

type identity struct{}

func (identity) Encode(data []byte) ([]byte, error) { return data, nil }
func (identity) Decode(data []byte) ([]byte, error) { return data, nil }

type base64Codec struct{}

func (base64Codec) Encode(data []byte) ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(data)), nil
}

func (base64Codec) Decode(data []byte) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	return decoded, nil
}

type gzipCodec struct{}

func (gzipCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	// Close flushes the footer, so it must run before buf is read
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decode(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader init failed: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return out, nil
}

type snappyCodec struct{}

func (snappyCodec) Encode(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCodec) Decode(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode failed: %w", err)
	}
	return out, nil
}
