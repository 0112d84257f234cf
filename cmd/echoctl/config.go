package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/framecho/internal/echo"
)

// echoctl config.toml key mapping to echo service settings.
type fileConfig struct {
	Addr            string `toml:"addr"`
	AdminListenAddr string `toml:"admin_listen_addr"`
	MaxPayloadLen   int64  `toml:"max_payload_len"`
	ResponsePrefix  string `toml:"response_prefix"`
	MaxConns        int    `toml:"max_conns"`
	HistoryLimit    int    `toml:"history_limit"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	TLSMutual       bool   `toml:"tls_mutual"`
	TLSCertFile     string `toml:"tls_cert_file"`
	TLSKeyFile      string `toml:"tls_key_file"`
	TLSCAFile       string `toml:"tls_ca_file"`
}

// loadServiceConfig overlays keys present in path onto the service defaults.
func loadServiceConfig(path string) (echo.ServiceConfig, error) {
	cfg := echo.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return echo.ServiceConfig{}, fmt.Errorf("load echo config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return echo.ServiceConfig{}, fmt.Errorf("load echo config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("max_payload_len") {
		if raw.MaxPayloadLen <= 0 || raw.MaxPayloadLen > int64(^uint32(0)) {
			return echo.ServiceConfig{}, fmt.Errorf("parse max_payload_len: out of range: %d", raw.MaxPayloadLen)
		}
		cfg.MaxPayloadLen = uint32(raw.MaxPayloadLen)
	}
	if meta.IsDefined("response_prefix") {
		cfg.ResponsePrefix = raw.ResponsePrefix
	}
	if meta.IsDefined("max_conns") {
		cfg.MaxConns = raw.MaxConns
	}
	if meta.IsDefined("history_limit") {
		cfg.HistoryLimit = raw.HistoryLimit
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return echo.ServiceConfig{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return echo.ServiceConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.Session.WriteTimeout = d
	}
	if meta.IsDefined("tls_enabled") {
		cfg.Session.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_mutual") {
		cfg.Session.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Session.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Session.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Session.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}

	return cfg, nil
}
