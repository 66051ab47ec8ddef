package ratelimit

import (
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Config
		wantErr bool
	}{
		{name: "empty uses default", input: "", want: DefaultSendConfig()},
		{name: "count only", input: "5", want: Config{RequestsPerWindow: 5, WindowSize: 10 * time.Second}},
		{name: "count and window", input: "100/1m", want: Config{RequestsPerWindow: 100, WindowSize: time.Minute}},
		{name: "spaces", input: " 3 / 2s ", want: Config{RequestsPerWindow: 3, WindowSize: 2 * time.Second}},
		{name: "zero count", input: "0", wantErr: true},
		{name: "not a number", input: "many", wantErr: true},
		{name: "bad window", input: "5/soon", wantErr: true},
		{name: "negative window", input: "5/-1s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseConfig(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfig(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseConfig(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}
