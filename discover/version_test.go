package discover

import "testing"

func TestVersionMatch(t *testing.T) {
	cases := []struct {
		req, adv string
		want     bool
	}{
		{"^0.1.0", "0.1.4", true},
		{"^0.1.0", "0.2.0", false},
		{"^1.0.0", "1.9.9", true},
		{"^1.0.0", "0.9.9", false},
		{"not-a-requirement", "0.1.0", false},
		{"^0.1.0", "not-a-version", false},
	}

	for _, c := range cases {
		got := versionMatch(c.req, c.adv)
		if got != c.want {
			t.Errorf("versionMatch(%q, %q) = %v, want %v", c.req, c.adv, got, c.want)
		}
	}
}
