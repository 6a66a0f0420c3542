package util

import "testing"

func TestParseBigInt(t *testing.T) {
	if v, err := ParseBigInt("  1000000000000000000000 "); err != nil || v.String() != "1000000000000000000000" {
		t.Errorf("ParseBigInt = %v, %v", v, err)
	}
	for _, bad := range []string{"", "1.5", "0x10", "abc"} {
		if _, err := ParseBigInt(bad); err == nil {
			t.Errorf("ParseBigInt(%q) accepted", bad)
		}
	}
}

func TestAddAndCompare(t *testing.T) {
	sum, err := Add("1500", "2500")
	if err != nil || sum.String() != "4000" {
		t.Errorf("Add = %v, %v", sum, err)
	}

	for _, tc := range []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"2", "2", 0},
		{"3", "2", 1},
		{"-1", "0", -1},
	} {
		got, err := Compare(tc.a, tc.b)
		if err != nil || got != tc.want {
			t.Errorf("Compare(%q, %q) = %d, %v; want %d", tc.a, tc.b, got, err, tc.want)
		}
	}
}

func TestSumStrings(t *testing.T) {
	sum, err := SumStrings([]string{"100", "", "  ", "250"})
	if err != nil || sum.String() != "350" {
		t.Errorf("SumStrings = %v, %v", sum, err)
	}
	if _, err := SumStrings([]string{"100", "oops"}); err == nil {
		t.Error("SumStrings accepted a non-numeric value")
	}
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(32)
	if err != nil {
		t.Fatalf("RandomHex: %v", err)
	}
	if len(a) != 2+64 || a[:2] != "0x" {
		t.Errorf("RandomHex format: %q", a)
	}
	b, err := RandomHex(32)
	if err != nil {
		t.Fatalf("RandomHex: %v", err)
	}
	if a == b {
		t.Error("RandomHex repeated")
	}
}
