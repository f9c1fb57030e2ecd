package checkout

import "testing"

func TestFormatPhone(t *testing.T) {
	cases := map[string]string{
		"":                  "+998 ",
		"+998 ":             "+998 ",
		"+998":              "+998 ",
		"90":                "+998 90",
		"901234567":         "+998 90 123 45 67",
		"+998901234567":     "+998 90 123 45 67",
		"998901234567":      "+998 90 123 45 67",
		"+998 90 123 45 67": "+998 90 123 45 67",
		"90123456789":       "+998 90 123 45 67",
		"99812345":          "+998 99 812 34 5",
	}
	for in, want := range cases {
		if got := FormatPhone(in); got != want {
			t.Fatalf("FormatPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsBarePrefix(t *testing.T) {
	if !IsBarePrefix("+998 ") {
		t.Fatal("bare prefix should be detected")
	}
	if !IsBarePrefix("  ") {
		t.Fatal("blank input carries no digits")
	}
	if IsBarePrefix("+998 9") {
		t.Fatal("a single digit is not the bare prefix")
	}
}
