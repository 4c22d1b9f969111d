package index

import "testing"

func TestMatches(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"empty pattern is universal", "", "anything", true},
		{"exact match", "CT", "CT", true},
		{"exact mismatch", "CT", "MR", false},
		{"wildcard star prefix", "DOE*", "DOE^JANE", true},
		{"wildcard star no match", "SMITH*", "DOE^JANE", false},
		{"wildcard question mark", "CT?", "CTA", true},
		{"range both bounds", "20260101-20260131", "20260115", true},
		{"range outside bounds", "20260101-20260131", "20270101", false},
		{"range open lower", "-20260131", "20250101", true},
		{"range open upper", "20260101-", "20301231", true},
		{"list match", `CT\MR\US`, "MR", true},
		{"list no match", `CT\MR`, "US", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := matches(tc.pattern, tc.value); got != tc.want {
				t.Errorf("matches(%q, %q) = %v, want %v", tc.pattern, tc.value, got, tc.want)
			}
		})
	}
}
