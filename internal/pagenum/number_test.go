package pagenum

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"12", "12"},
		{"  12  ", "12"},
		{"- 12 -", "12"},
		{"[iv]", "iv"},
		{"· 7 ·", "7"},
		{"1 2 3", "123"},
		{"", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := normalize(tt.raw); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in         string
		wantN      int
		wantScheme Scheme
		wantOK     bool
	}{
		{"1", 1, SchemeArabic, true},
		{"42", 42, SchemeArabic, true},
		{"9999", 9999, SchemeArabic, true},
		{"0", 0, SchemeNone, false},
		{"12345", 0, SchemeNone, false},
		{"i", 1, SchemeRoman, true},
		{"iv", 4, SchemeRoman, true},
		{"ix", 9, SchemeRoman, true},
		{"xiv", 14, SchemeRoman, true},
		{"XLII", 42, SchemeRoman, true},
		{"mcmxcix", 1999, SchemeRoman, true},
		{"iiii", 0, SchemeNone, false},
		{"vv", 0, SchemeNone, false},
		{"il", 0, SchemeNone, false},
		{"ic", 0, SchemeNone, false},
		{"abc", 0, SchemeNone, false},
		{"", 0, SchemeNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, scheme, ok := parseNumber(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("parseNumber(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if n != tt.wantN || scheme != tt.wantScheme {
				t.Errorf("parseNumber(%q) = (%d, %s), want (%d, %s)",
					tt.in, n, scheme, tt.wantN, tt.wantScheme)
			}
		})
	}
}

func TestParseFuzzy(t *testing.T) {
	tests := []struct {
		in     string
		wantN  int
		wantOK bool
	}{
		{"1O", 10, true},  // capital O for zero
		{"4S", 45, true},  // S for five
		{"I2", 12, true},  // capital I for one
		{"2Z", 22, true},  // Z for two
		{"g8", 98, true},  // g for nine
		{"??", 0, false},  // nothing correctable
		{"OO", 0, false},  // two substitutions needed
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, _, ok := parseFuzzy(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("parseFuzzy(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && n != tt.wantN {
				t.Errorf("parseFuzzy(%q) = %d, want %d", tt.in, n, tt.wantN)
			}
		})
	}
}
