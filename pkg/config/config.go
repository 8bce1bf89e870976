// Package config assembles the §6.3 configuration structs into a single
// stack configuration, plus an ini-backed file loader for the channel's
// primary/backup/retry settings.
//
// Grounded on the teacher's pkg/config (general.go, pdo.go, sync.go, ...):
// plain structs with sane zero-value defaults, assembled by a caller that
// owns the lower-level packages (pkg/od there, pkg/app/pkg/channel/
// pkg/file here). The ini loading itself is grounded on pkg/od/parser.go's
// `ini.Load` + `section.Key(...).String()`/`.Value()` idiom, generalized
// from EDS/DCF object-dictionary sections to channel sections.
package config

import (
	"fmt"
	"time"

	"github.com/kjheidel/godnp3/pkg/app"
	"github.com/kjheidel/godnp3/pkg/channel"
	"github.com/kjheidel/godnp3/pkg/file"
	"gopkg.in/ini.v1"
)

// StackConfig is the top-level assembly of every configurable piece of a
// running master or outstation stack, per §6.3.
type StackConfig struct {
	Master     app.MasterConfig
	Outstation app.OutstationConfig
	Channel    ChannelConfig
	File       file.Config
}

func DefaultStackConfig() StackConfig {
	return StackConfig{
		Master:     app.DefaultMasterConfig(),
		Outstation: app.DefaultOutstationConfig(),
		Channel:    DefaultChannelConfig(),
		File:       file.DefaultConfig(),
	}
}

// ChannelConfig bundles a channel's primary/optional-backup endpoints with
// its retry and backup-return policy, exactly per §6.3/§4.I.
type ChannelConfig struct {
	Primary   channel.ConnectionOptions
	Backup    channel.ConnectionOptions
	HasBackup bool
	Retry     channel.ChannelRetry
	Backoff   channel.BackupConfig
}

func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		Retry: channel.DefaultChannelRetry(),
	}
}

func parseKind(s string) (channel.Kind, error) {
	switch s {
	case "serial":
		return channel.KindSerial, nil
	case "tcp":
		return channel.KindTCP, nil
	case "udp":
		return channel.KindUDP, nil
	case "tls":
		return channel.KindTLS, nil
	default:
		return 0, fmt.Errorf("config: unknown channel kind %q", s)
	}
}

func parseConnectionOptions(section *ini.Section) (channel.ConnectionOptions, error) {
	kind, err := parseKind(section.Key("Kind").String())
	if err != nil {
		return channel.ConnectionOptions{}, err
	}
	return channel.ConnectionOptions{
		Kind:     kind,
		Device:   section.Key("Device").String(),
		BaudRate: section.Key("BaudRate").MustInt(9600),
		Address:  section.Key("Address").String(),
	}, nil
}

// LoadChannelConfig reads a channel's primary/backup/retry settings from an
// ini file shaped as:
//
//	[primary]
//	Kind = tcp
//	Address = 10.0.0.1:20000
//
//	[backup]
//	Kind = tcp
//	Address = 10.0.0.2:20000
//
//	[retry]
//	MinOpenRetryMs = 1000
//	MaxOpenRetryMs = 30000
//	ReconnectDelayMs = 1000
//	InfiniteTries = true
//
//	[backoff]
//	ReadingsBeforeReturnToPrimary = 2
func LoadChannelConfig(path string) (ChannelConfig, error) {
	cfg := DefaultChannelConfig()

	f, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}

	primary, err := parseConnectionOptions(f.Section("primary"))
	if err != nil {
		return cfg, fmt.Errorf("config: primary section: %w", err)
	}
	cfg.Primary = primary

	if f.HasSection("backup") {
		backup, err := parseConnectionOptions(f.Section("backup"))
		if err != nil {
			return cfg, fmt.Errorf("config: backup section: %w", err)
		}
		cfg.Backup = backup
		cfg.HasBackup = true
	}

	if f.HasSection("retry") {
		r := f.Section("retry")
		cfg.Retry = channel.ChannelRetry{
			MinOpenRetry:   time.Duration(r.Key("MinOpenRetryMs").MustInt(1000)) * time.Millisecond,
			MaxOpenRetry:   time.Duration(r.Key("MaxOpenRetryMs").MustInt(30000)) * time.Millisecond,
			ReconnectDelay: time.Duration(r.Key("ReconnectDelayMs").MustInt(1000)) * time.Millisecond,
			InfiniteTries:  r.Key("InfiniteTries").MustBool(true),
		}
	}

	if f.HasSection("backoff") {
		cfg.Backoff.ReadingsBeforeReturnToPrimary = uint32(f.Section("backoff").Key("ReadingsBeforeReturnToPrimary").MustInt(0))
	}

	return cfg, nil
}
