package amount

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0", want: "0"},
		{in: "1000", want: "1000"},
		{in: "340282366920938463463374607431768211456", want: "340282366920938463463374607431768211456"},
		{in: "-1", wantErr: true},
		{in: "+1", wantErr: true},
		{in: "1.5", wantErr: true},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %s", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSubGuardsNegative(t *testing.T) {
	_, err := New(10).Sub(New(11))
	if !errors.Is(err, ErrNegative) {
		t.Fatalf("expected ErrNegative, got %v", err)
	}

	r, err := New(10).Sub(New(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.IsZero() {
		t.Fatalf("expected zero, got %s", r)
	}
}

func TestSubClamped(t *testing.T) {
	r, clamped := New(5).SubClamped(New(8))
	if !clamped {
		t.Fatal("expected clamp")
	}
	if !r.IsZero() {
		t.Fatalf("expected zero after clamp, got %s", r)
	}

	r, clamped = New(8).SubClamped(New(5))
	if clamped {
		t.Fatal("unexpected clamp")
	}
	if r.String() != "3" {
		t.Fatalf("expected 3, got %s", r)
	}
}

func TestMulDivFloors(t *testing.T) {
	// floor(100 * 300 / 1000) = 30
	got, err := New(100).MulDiv(New(300), New(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "30" {
		t.Fatalf("expected 30, got %s", got)
	}

	// floor(7 * 1 / 3) = 2, remainder discarded
	got, err = New(7).MulDiv(New(1), New(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "2" {
		t.Fatalf("expected 2, got %s", got)
	}

	if _, err := New(7).MulDiv(New(1), Zero()); !errors.Is(err, ErrDivByZero) {
		t.Fatalf("expected ErrDivByZero, got %v", err)
	}
}

func TestZeroValueUsable(t *testing.T) {
	var a Amount
	if !a.IsZero() {
		t.Fatal("zero value should be zero")
	}
	if a.Add(New(5)).String() != "5" {
		t.Fatal("zero value should be additive identity")
	}
	if a.String() != "0" {
		t.Fatalf("expected \"0\", got %q", a.String())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	a := MustParse("123456789012345678901234567890")
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"123456789012345678901234567890"` {
		t.Fatalf("unexpected JSON: %s", data)
	}

	var back Amount
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.Cmp(a) != 0 {
		t.Fatalf("round trip mismatch: %s != %s", back, a)
	}
}

func TestUnmarshalJSONRejectsMalformed(t *testing.T) {
	var a Amount
	// Only one surrounding quote pair is stripped.
	for _, in := range []string{`""42""`, `"`, `""`, `"-1"`, `"x"`} {
		if err := a.UnmarshalJSON([]byte(in)); err == nil {
			t.Fatalf("expected error unmarshalling %s", in)
		}
	}

	if err := a.UnmarshalJSON([]byte(`42`)); err != nil {
		t.Fatalf("bare integer failed: %v", err)
	}
	if a.String() != "42" {
		t.Fatalf("expected 42, got %s", a)
	}
}

func TestScan(t *testing.T) {
	var a Amount
	if err := a.Scan([]byte("42")); err != nil {
		t.Fatalf("scan bytes failed: %v", err)
	}
	if a.String() != "42" {
		t.Fatalf("expected 42, got %s", a)
	}

	if err := a.Scan("1000000"); err != nil {
		t.Fatalf("scan string failed: %v", err)
	}
	if a.String() != "1000000" {
		t.Fatalf("expected 1000000, got %s", a)
	}

	if err := a.Scan(nil); err != nil {
		t.Fatalf("scan nil failed: %v", err)
	}
	if !a.IsZero() {
		t.Fatalf("expected zero after nil scan, got %s", a)
	}

	if err := a.Scan(int64(-1)); err == nil {
		t.Fatal("expected error scanning negative int64")
	}
}

func TestSum(t *testing.T) {
	got := Sum(New(1), New(2), New(3))
	if got.String() != "6" {
		t.Fatalf("expected 6, got %s", got)
	}
	if !Sum().IsZero() {
		t.Fatal("empty sum should be zero")
	}
}
