package client

import (
	"testing"
)

func TestParseLinks(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    map[string]string
	}{
		{
			name:    "first and next",
			headers: []string{`<https://hub/a?x=1>; rel="first", <https://hub/a?x=2>; rel="next"`},
			want:    map[string]string{"first": "https://hub/a?x=1", "next": "https://hub/a?x=2"},
		},
		{
			name:    "separate headers",
			headers: []string{`<https://hub/a>; rel="first"`, `<https://hub/b>; rel="next"`},
			want:    map[string]string{"first": "https://hub/a", "next": "https://hub/b"},
		},
		{
			name:    "first only",
			headers: []string{`<https://hub/a>; rel="first"`},
			want:    map[string]string{"first": "https://hub/a"},
		},
		{
			name: "none",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLinks(tt.headers)
			if len(got) != len(tt.want) {
				t.Fatalf("parseLinks() = %v, want %v", got, tt.want)
			}
			for rel, u := range tt.want {
				if got[rel] != u {
					t.Errorf("parseLinks()[%q] = %q, want %q", rel, got[rel], u)
				}
			}
		})
	}
}
