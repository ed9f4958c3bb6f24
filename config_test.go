package titanircd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFillsDefaultsForOmittedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "titanircd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen-address = "127.0.0.1:6667"
server-name = "irc.example.org"
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:6667", cfg.ListenAddress)
	require.Equal(t, "irc.example.org", cfg.ServerName)
	require.Equal(t, 1, cfg.ClientThreads)
	require.Equal(t, DefaultMessageReplayWindow, cfg.MaxReplaySince.Duration)
}

func TestLoadConfigParsesDurationKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "titanircd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
max-message-replay-since = "72h"
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 72*time.Hour, cfg.MaxReplaySince.Duration)
}
