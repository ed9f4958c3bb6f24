/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	flags "github.com/jessevdk/go-flags"
)

// Config is the on-disk TOML configuration, per spec §6 plus the
// supplemented keys in SPEC_FULL.md §4.7. Grounded on
// original_source/src/config.rs's Config struct.
type Config struct {
	ListenAddress  string `toml:"listen-address"`
	Motd           string `toml:"motd"`
	ClientThreads  int    `toml:"client-threads"`
	ChannelThreads int    `toml:"channel-threads"`
	ServerName     string `toml:"server-name"`
	NetworkName    string `toml:"network-name"`
	DatabasePath   string `toml:"database-path"`
	MaxReplaySince Duration `toml:"max-message-replay-since"`
	LogFormat      string `toml:"log-format"`
	LogLevel       string `toml:"log-level"`
}

// Duration wraps time.Duration with TOML text (un)marshalling, following the
// convention used across the IRC-server examples in the pack for
// duration-valued config keys (e.g. "24h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns a Config pre-populated with the same defaults dircd's
// functional-options constructor falls back to when unset.
func DefaultConfig() Config {
	return Config{
		ListenAddress:  "0.0.0.0:6667",
		ClientThreads:  1,
		ChannelThreads: 1,
		ServerName:     "irc.localhost.net",
		NetworkName:    "titanircd",
		DatabasePath:   "titanircd.db",
		MaxReplaySince: Duration{DefaultMessageReplayWindow},
		LogFormat:      "tty",
		LogLevel:       "info",
	}
}

// LoadConfig reads and decodes a TOML configuration file, filling any unset
// field with DefaultConfig's values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config %q: %w", path, err)
	}
	return cfg, nil
}

// CLIOptions is the command-line surface, per spec §6: a verbosity counter
// and a config file path.
type CLIOptions struct {
	Verbose []bool `short:"v" long:"verbose" description:"increase logging verbosity (stackable)"`
	Config  string `short:"c" long:"config" description:"path to the TOML configuration file" required:"true"`
}

// ParseCLI parses os.Args into CLIOptions.
func ParseCLI() (CLIOptions, error) {
	var opts CLIOptions
	_, err := flags.Parse(&opts)
	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		return CLIOptions{}, err
	}
	return opts, nil
}
