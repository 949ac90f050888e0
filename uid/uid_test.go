package uid

import "testing"

func TestCmpOrdering(t *testing.T) {
	cases := []struct {
		a, b UID
		want int
	}{
		{New(1, 1), New(1, 1), 0},
		{New(1, 1), New(1, 2), -1},
		{New(1, 2), New(1, 1), 1},
		{New(1, 0xFFFFFFFF), New(2, 0), -1},
		{Min, Max, -1},
	}
	for _, c := range cases {
		if got := Cmp(c.a, c.b); got != c.want {
			t.Errorf("Cmp(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestMidpointWithinRange(t *testing.T) {
	lo, hi := Min, Max
	mid, err := Midpoint(lo, hi)
	if err != nil {
		t.Fatalf("Midpoint: %v", err)
	}
	if !InRange(mid, lo, hi) {
		t.Fatalf("midpoint %v not in range [%v,%v]", mid, lo, hi)
	}
}

func TestMidpointExactFormula(t *testing.T) {
	lo := New(0, 0)
	hi := New(0, 10)
	mid, err := Midpoint(lo, hi)
	if err != nil {
		t.Fatalf("Midpoint: %v", err)
	}
	if mid != New(0, 5) {
		t.Errorf("Midpoint(0,10) = %v, want 0:5", mid)
	}
}

func TestMidpointRejectsInvertedRange(t *testing.T) {
	_, err := Midpoint(New(0, 10), New(0, 5))
	if err == nil {
		t.Fatal("expected error for hi < lo")
	}
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	u := New(0x1234, 0x5678ABCD)
	b := u.Encode()
	got, err := Decode(b[:])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != u {
		t.Errorf("roundtrip mismatch: got %v, want %v", got, u)
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestStringParseRoundtrip(t *testing.T) {
	u := New(0x0102, 0x03040506)
	s := u.String()
	if s != "0102:03040506" {
		t.Errorf("String() = %q", s)
	}
	got, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != u {
		t.Errorf("Parse(%q) = %v, want %v", s, got, u)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "nocolon", "a:b:c", "zzzz:00000000", "0000:zzzzzzzz"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error", s)
		}
	}
}
