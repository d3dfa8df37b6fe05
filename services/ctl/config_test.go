package ctl

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		missing bool
		want    Config
		wantErr bool
	}{
		{
			name:    "missing file uses defaults",
			missing: true,
			want:    Config{APIBase: "http://localhost:8080", Timeout: 10 * time.Second},
		},
		{
			name:    "explicit values",
			content: "api_base: https://trade.example.com\ntimeout: 3s\n",
			want:    Config{APIBase: "https://trade.example.com", Timeout: 3 * time.Second},
		},
		{
			name:    "partial file keeps defaults",
			content: "api_base: https://trade.example.com\n",
			want:    Config{APIBase: "https://trade.example.com", Timeout: 10 * time.Second},
		},
		{
			name:    "malformed yaml",
			content: "api_base: [unterminated\n",
			wantErr: true,
		},
		{
			name:    "bad duration",
			content: "timeout: soon\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if !tt.missing {
				if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
					t.Fatalf("write config: %v", err)
				}
			}

			got, err := LoadConfig(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want {
				t.Fatalf("LoadConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
