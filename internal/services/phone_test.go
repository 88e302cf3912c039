package services

import "testing"

func TestNormPhone(t *testing.T) {
	cases := map[string]string{
		"912345678":          "+351912345678",
		"912 345 678":        "+351912345678",
		"+351 912-345-678":   "+351912345678",
		"00351912345678":     "+351912345678",
		"351912345678":       "+351912345678",
		"213 456 789":        "+351213456789",
		"+44 7700 900123":    "+447700900123",
		"":                   "",
		"abc":                "",
		"12":                 "",
		"+351 (91) 234.5678": "+351912345678",
	}
	for in, want := range cases {
		if got := NormPhone(in); got != want {
			t.Errorf("NormPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAltPhones(t *testing.T) {
	got := altPhones("912345678")
	want := []string{"+351912345678", "912345678", "351912345678"}
	if len(got) != len(want) {
		t.Fatalf("altPhones = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("altPhones[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
