package driver

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNumber_Int(t *testing.T) {
	tests := []struct {
		in      Number
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"-7", -7, false},
		{"9007199254740993", 9007199254740993, false},
		{"1.5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := tt.in.Int()
			if tt.wantErr {
				if !errors.Is(err, ErrNotInteger) {
					t.Errorf("expected ErrNotInteger, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("expected %d, got %d (err=%v)", tt.want, got, err)
			}
		})
	}
}

func TestNumber_Float(t *testing.T) {
	tests := []struct {
		in      Number
		want    float64
		wantErr bool
	}{
		{"1.5", 1.5, false},
		{"1e3", 1000, false},
		{"inf", math.Inf(1), false},
		{"+INF", math.Inf(1), false},
		{"-inf", math.Inf(-1), false},
		{"nan", 0, true},
		{" 1", 0, true},
		{"x", 0, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := tt.in.Float()
			if tt.wantErr {
				if !errors.Is(err, ErrNotFloat) {
					t.Errorf("expected ErrNotFloat, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("expected %v, got %v (err=%v)", tt.want, got, err)
			}
		})
	}
}

func TestNumber_Seconds(t *testing.T) {
	d, err := Number("0.5").Seconds()
	if err != nil || d != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v (err=%v)", d, err)
	}
	if _, err := Number("-1").Seconds(); !errors.Is(err, ErrTimeoutNegative) {
		t.Errorf("expected ErrTimeoutNegative, got %v", err)
	}
	if _, err := Number("soon").Seconds(); !errors.Is(err, ErrTimeoutNotFloat) {
		t.Errorf("expected ErrTimeoutNotFloat, got %v", err)
	}
}

func TestSetOptions_Deadline(t *testing.T) {
	now := time.Unix(1000, 0)

	d, keep, err := SetOptions{Expiry: ExpiryEX, ExpiryValue: "10"}.Deadline(now)
	if err != nil || keep || !d.Equal(now.Add(10*time.Second)) {
		t.Errorf("EX: got %v keep=%v err=%v", d, keep, err)
	}

	d, _, err = SetOptions{Expiry: ExpiryPXAT, ExpiryValue: "2000500"}.Deadline(now)
	if err != nil || !d.Equal(time.UnixMilli(2000500)) {
		t.Errorf("PXAT: got %v err=%v", d, err)
	}

	_, keep, err = SetOptions{Expiry: ExpiryKeepTTL}.Deadline(now)
	if err != nil || !keep {
		t.Errorf("KEEPTTL: keep=%v err=%v", keep, err)
	}

	if _, _, err := (SetOptions{Expiry: ExpiryEX, ExpiryValue: "0"}).Deadline(now); !errors.Is(err, ErrInvalidExpire) {
		t.Errorf("expected ErrInvalidExpire, got %v", err)
	}
	if _, _, err := (SetOptions{Expiry: ExpiryEX, ExpiryValue: "ten"}).Deadline(now); !errors.Is(err, ErrNotInteger) {
		t.Errorf("expected ErrNotInteger, got %v", err)
	}
}

func TestScoreBoundary(t *testing.T) {
	b, err := ParseScoreBoundary("(1.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.AboveMin(1.5) || !b.AboveMin(1.6) {
		t.Error("exclusive lower bound misbehaves")
	}

	b, _ = ParseScoreBoundary("+inf")
	if !b.BelowMax(math.MaxFloat64) {
		t.Error("+inf should admit every score")
	}

	if _, err := ParseScoreBoundary("abc"); !errors.Is(err, ErrMinMaxNotFloat) {
		t.Errorf("expected ErrMinMaxNotFloat, got %v", err)
	}
}

func TestLexBoundary(t *testing.T) {
	tests := []struct {
		raw    string
		member string
		above  bool
		below  bool
	}{
		{"-", "a", true, false},
		{"+", "a", false, true},
		{"[b", "b", true, true},
		{"(b", "b", false, false},
		{"[b", "c", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw+"/"+tt.member, func(t *testing.T) {
			b, err := ParseLexBoundary(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := b.AboveMin(tt.member); got != tt.above {
				t.Errorf("AboveMin: expected %v, got %v", tt.above, got)
			}
			if got := b.BelowMax(tt.member); got != tt.below {
				t.Errorf("BelowMax: expected %v, got %v", tt.below, got)
			}
		})
	}

	if _, err := ParseLexBoundary("b"); !errors.Is(err, ErrMinMaxNotString) {
		t.Errorf("expected ErrMinMaxNotString, got %v", err)
	}
}

func TestNormalizeRange(t *testing.T) {
	tests := []struct {
		start, stop, length int64
		wantStart, wantStop int64
		ok                  bool
	}{
		{0, -1, 5, 0, 4, true},
		{-2, -1, 5, 3, 4, true},
		{3, 100, 5, 3, 4, true},
		{4, 2, 5, 0, 0, false},
		{0, -1, 0, 0, 0, false},
		{10, 20, 5, 0, 0, false},
	}
	for _, tt := range tests {
		s, e, ok := NormalizeRange(tt.start, tt.stop, tt.length)
		if ok != tt.ok || (ok && (s != tt.wantStart || e != tt.wantStop)) {
			t.Errorf("NormalizeRange(%d,%d,%d) = %d,%d,%v", tt.start, tt.stop, tt.length, s, e, ok)
		}
	}
}

func TestIsReplyError(t *testing.T) {
	if !IsReplyError(ErrWrongType) {
		t.Error("expected ErrWrongType to be a reply error")
	}
	if IsReplyError(ErrClosed) {
		t.Error("expected ErrClosed not to be a reply error")
	}
}
