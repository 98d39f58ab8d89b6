package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort                = 8080
	DefaultHost                = "127.0.0.1"
	DefaultLogLevel            = "info"
	DefaultMaxFileSize         = 100 * 1024 * 1024 // 100MB
	DefaultModelPath           = "models/FFDNet-L.onnx"
	DefaultConfidenceThreshold = 0.4
	DefaultPdftoppm            = "pdftoppm"
	DefaultRenderTimeout       = 60 * time.Second

	// Accepted confidence range
	MinConfidenceThreshold = 0.1
	MaxConfidenceThreshold = 1.0

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "MCP_PDF_FORMS"
)

// Config holds all configuration for the PDF forms MCP server
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// PDF configuration
	PDFDirectory string
	MaxFileSize  int64 // Maximum PDF file size in bytes

	// Detection configuration
	ModelPath           string
	ConfidenceThreshold float64
	StripExisting       bool
	ONNXRuntimeLibrary  string
	IntraOpThreads      int

	// Rendering configuration
	PdftoppmPath  string
	RenderTimeout time.Duration

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:                ModeStdio,
		Host:                DefaultHost,
		Port:                DefaultPort,
		PDFDirectory:        currentDir,
		MaxFileSize:         DefaultMaxFileSize,
		ModelPath:           DefaultModelPath,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		PdftoppmPath:        DefaultPdftoppm,
		RenderTimeout:       DefaultRenderTimeout,
		Version:             "1.0.0",
		ServerName:          "mcp-pdf-forms",
		LogLevel:            DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	if cfg.PDFDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.PDFDirectory); err == nil {
			cfg.PDFDirectory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// flagKeys lists every key shared by flags, environment and viper
var flagKeys = []string{
	"mode", "host", "port", "dir", "loglevel", "maxfilesize",
	"model", "confidence", "strip-existing", "onnxruntime-lib", "threads",
	"pdftoppm", "render-timeout",
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("model", cfg.ModelPath)
	viper.SetDefault("confidence", cfg.ConfidenceThreshold)
	viper.SetDefault("strip-existing", cfg.StripExisting)
	viper.SetDefault("onnxruntime-lib", cfg.ONNXRuntimeLibrary)
	viper.SetDefault("threads", cfg.IntraOpThreads)
	viper.SetDefault("pdftoppm", cfg.PdftoppmPath)
	viper.SetDefault("render-timeout", cfg.RenderTimeout)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP/SSE server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.PDFDirectory, "Directory containing PDF files")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.String("model", cfg.ModelPath, "Path to the FFDNet ONNX model")
	pflag.Float64("confidence", cfg.ConfidenceThreshold, "Default detection confidence threshold (0.1-1.0)")
	pflag.Bool("strip-existing", cfg.StripExisting, "Remove existing form fields before adding detected ones")
	pflag.String("onnxruntime-lib", cfg.ONNXRuntimeLibrary, "Path to the onnxruntime shared library")
	pflag.Int("threads", cfg.IntraOpThreads, "ONNX Runtime intra-op threads (0 lets the runtime decide)")
	pflag.String("pdftoppm", cfg.PdftoppmPath, "pdftoppm binary used to render pages")
	pflag.Duration("render-timeout", cfg.RenderTimeout, "Timeout for rendering a single page")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, key := range flagKeys {
		_ = viper.BindPFlag(key, pflag.Lookup(key))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP PDF Forms - A Model Context Protocol server that turns flat PDFs into fillable forms\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/pdfs                         "+
			"# stdio mode with custom directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --model=models/FFDNet-S.onnx --confidence=0.5 "+
			"# smaller model, stricter threshold\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --host=0.0.0.0 --port=8081     # SSE server on all interfaces\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		for _, key := range flagKeys {
			fmt.Fprintf(os.Stderr, "  %s\n", envName(key))
		}
	}
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.ModelPath = viper.GetString("model")
	cfg.ConfidenceThreshold = viper.GetFloat64("confidence")
	cfg.StripExisting = viper.GetBool("strip-existing")
	cfg.ONNXRuntimeLibrary = viper.GetString("onnxruntime-lib")
	cfg.IntraOpThreads = viper.GetInt("threads")
	cfg.PdftoppmPath = viper.GetString("pdftoppm")
	cfg.RenderTimeout = viper.GetDuration("render-timeout")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}

	// Create the PDF directory if it doesn't exist
	if _, err := os.Stat(c.PDFDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.PDFDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create PDF directory %s: %w", c.PDFDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access PDF directory %s: %w", c.PDFDirectory, err)
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}

	if c.ConfidenceThreshold < MinConfidenceThreshold || c.ConfidenceThreshold > MaxConfidenceThreshold {
		return fmt.Errorf("confidence must be between %v and %v, got %v",
			MinConfidenceThreshold, MaxConfidenceThreshold, c.ConfidenceThreshold)
	}

	if c.IntraOpThreads < 0 {
		return errors.New("threads cannot be negative")
	}

	if c.RenderTimeout <= 0 {
		return errors.New("render timeout must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// LogrusLevel maps LogLevel to a logrus level, falling back to info
func (c *Config) LogrusLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, PDFDirectory: %s, LogLevel: %s, MaxFileSize: %d, "+
		"Model: %s, Confidence: %v, StripExisting: %t}",
		c.Mode, c.Host, c.Port, c.PDFDirectory, c.LogLevel, c.MaxFileSize,
		c.ModelPath, c.ConfidenceThreshold, c.StripExisting)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
