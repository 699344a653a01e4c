package peerid

import "testing"

func TestStringRoundTrip(t *testing.T) {
	n := Generate([]byte("a certificate, supposedly"))
	s := n.String()

	var n2 ID
	if err := n2.UnmarshalText([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if n2 != n {
		t.Errorf("round trip mismatch: %v != %v", n2, n)
	}
}

func TestStringFormat(t *testing.T) {
	n := Generate([]byte("x"))
	s := n.String()
	// 52 base32 chars + 4 check digits = 56, chunked every 7 with hyphens.
	if len(s) != 56+7 {
		t.Errorf("unexpected length %d for %q", len(s), s)
	}
}

func TestEquals(t *testing.T) {
	a := Generate([]byte("a"))
	b := Generate([]byte("a"))
	c := Generate([]byte("b"))
	if !a.Equals(b) {
		t.Error("expected equal")
	}
	if a.Equals(c) {
		t.Error("expected not equal")
	}
}

func TestEmpty(t *testing.T) {
	var n ID
	if !n.IsEmpty() {
		t.Error("zero value should be empty")
	}
	if Generate([]byte("x")).IsEmpty() {
		t.Error("generated id should not be empty")
	}
}

func TestFromBytesWrongLength(t *testing.T) {
	if _, err := FromBytes([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short byte slice")
	}
}
