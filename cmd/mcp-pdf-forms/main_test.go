package main

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/a3tai/mcp-pdf-forms/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintVersion(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := version, buildTime, gitCommit
	defer func() { version, buildTime, gitCommit = oldVersion, oldBuildTime, oldGitCommit }()

	version = "1.2.3"
	buildTime = "2025-06-01_10:30:00"
	gitCommit = "abc123"

	var out bytes.Buffer
	printVersion(&out)

	text := out.String()
	assert.Contains(t, text, "MCP PDF Forms")
	assert.Contains(t, text, "Version: 1.2.3")
	assert.Contains(t, text, "Build Time: 2025-06-01_10:30:00")
	assert.Contains(t, text, "Git Commit: abc123")
	assert.Contains(t, text, runtime.Version())
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		level    string
		expected logrus.Level
	}{
		{name: "stdio info", mode: config.ModeStdio, level: "info", expected: logrus.InfoLevel},
		{name: "stdio debug", mode: config.ModeStdio, level: "debug", expected: logrus.DebugLevel},
		{name: "server warn", mode: config.ModeServer, level: "warn", expected: logrus.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Mode = tt.mode
			cfg.LogLevel = tt.level

			var out bytes.Buffer
			logger := newLogger(cfg, &out)
			assert.Equal(t, tt.expected, logger.GetLevel())

			logger.Warn("renderer missing")
			assert.Contains(t, out.String(), "renderer missing")
		})
	}
}

func TestNewService(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PDFDirectory = t.TempDir()
	cfg.PdftoppmPath = "definitely-not-installed-pdftoppm"

	var out bytes.Buffer
	svc, engine, err := newService(cfg, newLogger(cfg, &out))
	require.NoError(t, err)
	require.NotNil(t, svc)
	require.NotNil(t, engine)
	assert.Equal(t, cfg.PDFDirectory, svc.Directory())
	assert.Contains(t, out.String(), "page renderer unavailable")

	cfg.MaxFileSize = 0
	_, _, err = newService(cfg, newLogger(cfg, &out))
	assert.Error(t, err)
}
