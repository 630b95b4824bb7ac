// Package config provides configuration management for the export service.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort                 = 8090
	DefaultLogLevel             = "info"
	DefaultDataDir              = ".clipforge"
	DefaultMinClipSeconds       = 5
	DefaultMaxClipSeconds       = 180
	DefaultMaxConcurrentExports = 2
	DefaultUploadAttempts       = 2
	DefaultStorageBucket        = "videos"

	// Environment variable names
	EnvPort     = "CLIPFORGE_PORT"
	EnvLogLevel = "CLIPFORGE_LOG_LEVEL"
	EnvDataDir  = "CLIPFORGE_DATA_DIR"
	EnvWorkDir  = "CLIPFORGE_WORK_DIR"

	// External tool environment variable names
	EnvFFmpegPath  = "CLIPFORGE_FFMPEG_PATH"
	EnvFFprobePath = "CLIPFORGE_FFPROBE_PATH"

	// Export pipeline environment variable names
	EnvMinClipSeconds       = "CLIPFORGE_MIN_CLIP_SECONDS"
	EnvMaxClipSeconds       = "CLIPFORGE_MAX_CLIP_SECONDS"
	EnvMaxConcurrentExports = "CLIPFORGE_MAX_CONCURRENT_EXPORTS"
	EnvUploadAttempts       = "CLIPFORGE_UPLOAD_ATTEMPTS"

	// Collaborator endpoint environment variable names. The storage
	// endpoint is read once at startup and passed to the client
	// explicitly; nothing in the process mutates it afterwards.
	EnvStorageURL    = "CLIPFORGE_STORAGE_URL"
	EnvStorageToken  = "CLIPFORGE_STORAGE_TOKEN"
	EnvStorageBucket = "CLIPFORGE_STORAGE_BUCKET"
	EnvNotifyURL     = "CLIPFORGE_NOTIFY_URL"
	EnvNotifyToken   = "CLIPFORGE_NOTIFY_TOKEN"

	// Database filename
	DBFilename = "clipforge.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	WorkDir() string
	BlobDir() string
	FFmpegPath() string
	FFprobePath() string
	MinClipDuration() time.Duration
	MaxClipDuration() time.Duration
	MaxConcurrentExports() int
	UploadAttempts() int
	StorageURL() string
	StorageToken() string
	StorageBucket() string
	NotifyURL() string
	NotifyToken() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port           int
	logLevel       string
	dataDir        string
	workDir        string
	ffmpegPath     string
	ffprobePath    string
	minClipSeconds int
	maxClipSeconds int
	maxConcurrent  int
	uploadAttempts int
	storageURL     string
	storageToken   string
	storageBucket  string
	notifyURL      string
	notifyToken    string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		minClipSeconds: DefaultMinClipSeconds,
		maxClipSeconds: DefaultMaxClipSeconds,
		maxConcurrent:  DefaultMaxConcurrentExports,
		uploadAttempts: DefaultUploadAttempts,
		storageBucket:  DefaultStorageBucket,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if wd := os.Getenv(EnvWorkDir); wd != "" {
		cfg.workDir = wd
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)

	var err error
	if cfg.minClipSeconds, err = intEnv(EnvMinClipSeconds, cfg.minClipSeconds); err != nil {
		return nil, err
	}
	if cfg.maxClipSeconds, err = intEnv(EnvMaxClipSeconds, cfg.maxClipSeconds); err != nil {
		return nil, err
	}
	if cfg.minClipSeconds < 1 || cfg.maxClipSeconds <= cfg.minClipSeconds {
		return nil, fmt.Errorf("invalid clip duration window [%ds, %ds]", cfg.minClipSeconds, cfg.maxClipSeconds)
	}

	if cfg.maxConcurrent, err = intEnv(EnvMaxConcurrentExports, cfg.maxConcurrent); err != nil {
		return nil, err
	}
	if cfg.maxConcurrent < 1 {
		return nil, fmt.Errorf("invalid %s: must be at least 1", EnvMaxConcurrentExports)
	}

	if cfg.uploadAttempts, err = intEnv(EnvUploadAttempts, cfg.uploadAttempts); err != nil {
		return nil, err
	}
	if cfg.uploadAttempts < 1 {
		return nil, fmt.Errorf("invalid %s: must be at least 1", EnvUploadAttempts)
	}

	cfg.storageURL = os.Getenv(EnvStorageURL)
	cfg.storageToken = os.Getenv(EnvStorageToken)
	if b := os.Getenv(EnvStorageBucket); b != "" {
		cfg.storageBucket = b
	}
	cfg.notifyURL = os.Getenv(EnvNotifyURL)
	cfg.notifyToken = os.Getenv(EnvNotifyToken)

	return cfg, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// WorkDir returns the directory under which per-job workspaces are created
func (c *EnvConfig) WorkDir() string {
	if c.workDir != "" {
		return c.workDir
	}
	return filepath.Join(c.dataDir, "work")
}

// BlobDir returns the local blob directory used when no remote storage
// endpoint is configured
func (c *EnvConfig) BlobDir() string {
	return filepath.Join(c.dataDir, "blobs")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) MinClipDuration() time.Duration {
	return time.Duration(c.minClipSeconds) * time.Second
}

func (c *EnvConfig) MaxClipDuration() time.Duration {
	return time.Duration(c.maxClipSeconds) * time.Second
}

func (c *EnvConfig) MaxConcurrentExports() int {
	return c.maxConcurrent
}

func (c *EnvConfig) UploadAttempts() int {
	return c.uploadAttempts
}

func (c *EnvConfig) StorageURL() string {
	return c.storageURL
}

func (c *EnvConfig) StorageToken() string {
	return c.storageToken
}

func (c *EnvConfig) StorageBucket() string {
	return c.storageBucket
}

func (c *EnvConfig) NotifyURL() string {
	return c.notifyURL
}

func (c *EnvConfig) NotifyToken() string {
	return c.notifyToken
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
