package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func Test_parseFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Config
	}{
		{
			name: "no flags",
			args: nil,
			want: Config{Platform: "web"},
		},
		{
			name: "short flags",
			args: []string{"-u", "https://x.supabase.co", "-k", "anon", "-p", "ios", "-d", "/tmp/a.db"},
			want: Config{BackendURL: "https://x.supabase.co", AnonKey: "anon", Platform: "ios", DatabasePath: "/tmp/a.db"},
		},
		{
			name: "foreign flags are ignored",
			args: []string{"-c", "cfg.json", "-l=debug", "--verbose", "-f", "json"},
			want: Config{Platform: "web", LogLevel: "debug", LogFormat: "json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Platform: "web"}
			require.NoError(t, parseFlags(&cfg, tt.args))
			if diff := cmp.Diff(tt.want, cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
