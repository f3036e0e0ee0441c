package glob

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"user", "user", true},
		{"user", "users", false},
		{"use_", "user", true},
		{"use_", "use", false},
		{"use_", "userx", false},
		{"user*", "user", true},
		{"user*", "user:1:profile", true},
		{"*:profile", "user:1:profile", true},
		{"*:profile", "user:1:profil", false},
		{"user:*:profile", "user:1:profile", true},
		{"user:*:profile", "user::profile", true},
		{"user:*:profile", "user:1:2:profile", true},
		{"a*b*b", "abxbb", true},
		{"a*b*b", "abxb", true},
		{"*", "anything", true},
		{"*", "", true},
		{"__", "ab", true},
		{"__", "a", false},
		{"__", "abc", false},
		{"", "", true},
		{"", "a", false},
	}

	for _, c := range cases {
		p, err := Compile([]byte(c.pattern))
		if err != nil {
			t.Fatalf("Compile(%q) error: %v", c.pattern, err)
		}
		got := p.Match([]byte(c.key))
		if got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.key, got, c.want)
		}
	}
}

func TestMatchRepeatedStarsDoNotMisbehave(t *testing.T) {
	// Regression case for the Test::Until bug in the Rust original: a
	// pattern with more than one '*' separated by a repeated literal
	// byte must still backtrack correctly instead of giving up after
	// the first occurrence of the byte following the first '*'.
	p, err := Compile([]byte("*b*b*"))
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if !p.Match([]byte("xbybzbq")) {
		t.Errorf("expected match for repeated-separator pattern")
	}
}
