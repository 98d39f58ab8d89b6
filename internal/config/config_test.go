package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PDFDirectory = t.TempDir()
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ModeStdio, cfg.Mode)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, "mcp-pdf-forms", cfg.ServerName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxFileSize)
	assert.InDelta(t, 0.4, cfg.ConfidenceThreshold, 1e-12)
	assert.Equal(t, "models/FFDNet-L.onnx", cfg.ModelPath)

	currentDir, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, currentDir, cfg.PDFDirectory)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid stdio", modify: func(*Config) {}},
		{name: "valid server", modify: func(c *Config) { c.Mode = ModeServer }},
		{name: "port ignored in stdio mode", modify: func(c *Config) { c.Port = 0 }},
		{name: "confidence lower bound", modify: func(c *Config) { c.ConfidenceThreshold = 0.1 }},
		{name: "confidence upper bound", modify: func(c *Config) { c.ConfidenceThreshold = 1.0 }},
		{name: "invalid mode", modify: func(c *Config) { c.Mode = "http" }, wantErr: "mode must be"},
		{name: "invalid port", modify: func(c *Config) { c.Mode = ModeServer; c.Port = 70000 }, wantErr: "port must be"},
		{name: "empty directory", modify: func(c *Config) { c.PDFDirectory = "" }, wantErr: "cannot be empty"},
		{name: "zero file size", modify: func(c *Config) { c.MaxFileSize = 0 }, wantErr: "file size must be positive"},
		{name: "empty model", modify: func(c *Config) { c.ModelPath = "" }, wantErr: "model path"},
		{name: "confidence too low", modify: func(c *Config) { c.ConfidenceThreshold = 0.09 }, wantErr: "confidence"},
		{name: "confidence too high", modify: func(c *Config) { c.ConfidenceThreshold = 1.01 }, wantErr: "confidence"},
		{name: "negative threads", modify: func(c *Config) { c.IntraOpThreads = -2 }, wantErr: "threads"},
		{name: "zero render timeout", modify: func(c *Config) { c.RenderTimeout = 0 }, wantErr: "render timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigValidateDirectoryCreation(t *testing.T) {
	cfg := validConfig(t)
	cfg.PDFDirectory = filepath.Join(t.TempDir(), "nested", "pdfs")

	require.NoError(t, cfg.Validate())
	assert.DirExists(t, cfg.PDFDirectory)
}

func TestConfigValidateLogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig(t)
		cfg.LogLevel = level
		assert.NoError(t, cfg.Validate(), level)
	}
	for _, level := range []string{"DEBUG", "trace", "fatal", ""} {
		cfg := validConfig(t)
		cfg.LogLevel = level
		assert.Error(t, cfg.Validate(), level)
	}
}

func TestConfigLogrusLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"bogus": logrus.InfoLevel,
	}
	for level, expected := range tests {
		cfg := &Config{LogLevel: level}
		assert.Equal(t, expected, cfg.LogrusLevel(), level)
	}
}

func TestConfigAccessors(t *testing.T) {
	cfg := &Config{Mode: ModeServer, Host: "localhost", Port: 9000, LogLevel: "debug", ModelPath: "m.onnx", ConfidenceThreshold: 0.5}

	assert.Equal(t, "localhost:9000", cfg.Address())
	assert.True(t, cfg.IsDebug())
	assert.True(t, cfg.IsServerMode())
	assert.False(t, cfg.IsStdioMode())
	assert.Contains(t, cfg.String(), "Mode: server")
	assert.Contains(t, cfg.String(), "Model: m.onnx")
	assert.Contains(t, cfg.String(), "Confidence: 0.5")

	cfg.Mode = ModeStdio
	cfg.LogLevel = "info"
	assert.True(t, cfg.IsStdioMode())
	assert.False(t, cfg.IsDebug())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "MCP_PDF_FORMS_STRIP_EXISTING", envName("strip-existing"))
	assert.Equal(t, "MCP_PDF_FORMS_DIR", envName("dir"))
}
