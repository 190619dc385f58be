package database

import "testing"

func TestSimpleProtocolURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@db/triage", "postgres://u:p@db/triage?default_query_exec_mode=simple_protocol"},
		{"postgres://u:p@db/triage?sslmode=disable", "postgres://u:p@db/triage?sslmode=disable&default_query_exec_mode=simple_protocol"},
		{"postgres://db/triage?default_query_exec_mode=exec", "postgres://db/triage?default_query_exec_mode=exec"},
	}
	for _, tt := range tests {
		if got := SimpleProtocolURL(tt.in); got != tt.want {
			t.Errorf("SimpleProtocolURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
