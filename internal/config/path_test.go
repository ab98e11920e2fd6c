package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultDataDir(t *testing.T) {
	tests := []struct {
		name   string
		layout []string // directories created under HOME
		xdg    string
		want   func(home string) string
	}{
		{
			name: "xdg data home wins",
			xdg:  "/custom/data",
			want: func(string) string { return "/custom/data/shardq" },
		},
		{
			name:   "macOS application support",
			layout: []string{"Library"},
			want:   func(h string) string { return filepath.Join(h, "Library", "Application Support", "shardq") },
		},
		{
			name:   "windows local app data",
			layout: []string{"AppData"},
			want:   func(h string) string { return filepath.Join(h, "AppData", "Local", "shardq") },
		},
		{
			name: "dotdir fallback",
			want: func(h string) string { return filepath.Join(h, ".shardq") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			for _, d := range tt.layout {
				require.NoError(t, os.MkdirAll(filepath.Join(home, d), 0o755))
			}
			t.Setenv("HOME", home)
			t.Setenv("XDG_DATA_HOME", tt.xdg)
			require.Equal(t, tt.want(home), DefaultDataDir())
		})
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("HOME", "")
	t.Setenv("XDG_DATA_HOME", "/ignored")
	require.Equal(t, "./data", DefaultDataDir())
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	require.True(t, isDir(dir))
	require.False(t, isDir(file))
	require.False(t, isDir(filepath.Join(dir, "missing")))
}
