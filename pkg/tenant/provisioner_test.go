package tenant

import (
	"testing"
)

func TestSlugValidation(t *testing.T) {
	tests := []struct {
		slug  string
		valid bool
	}{
		{"acme", true},
		{"condominio_central", true},
		{"a1", true},
		{"", false},
		{"A", false},
		{"1abc", false},
		{"-abc", false},
		{"a", false},
		{"has space", false},
		{"has-dash", false},
		{"a.b", false},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			got := slugPattern.MatchString(tt.slug)
			if got != tt.valid {
				t.Errorf("slugPattern.MatchString(%q) = %v, want %v", tt.slug, got, tt.valid)
			}
		})
	}
}

func TestHeadersOrEmpty(t *testing.T) {
	if got := headersOrEmpty(nil); got == nil || len(got) != 0 {
		t.Errorf("headersOrEmpty(nil) = %v, want empty map", got)
	}
	h := map[string]string{"X-Source": "callcenter"}
	if got := headersOrEmpty(h); got["X-Source"] != "callcenter" {
		t.Errorf("headersOrEmpty kept %v", got)
	}
}
