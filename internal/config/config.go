package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr      = ":8080"
	defaultDatabaseURL     = "modelibr.db"
	defaultStorageRoot     = "./data"
	defaultMaxUploadSize   = "209715200" // 200 MB
	defaultWorkerCount     = "2"
	defaultRenderTimeout   = "120s"
	defaultStuckJobAfter   = "5m"
	defaultQueuePoll       = "5s"
	defaultPreviewSize     = "256"
	defaultThumbnailFrames = "1"
	defaultThumbnailAngle  = "30"
)

// Config carries every runtime knob for the API and the thumbnail pipeline.
// Worker pool size and recovery timeouts are construction-time values here,
// never package-level state.
type Config struct {
	AppEnv      string
	ListenAddr  string
	DatabaseURL string
	StorageRoot string

	MaxUploadSize int64

	// Thumbnail pipeline.
	WorkerCount       int
	RenderURL         string
	RenderTimeout     time.Duration
	StuckJobAfter     time.Duration
	QueuePollInterval time.Duration
	PreviewSize       int
	ThumbnailFrames   int
	ThumbnailAngle    float64

	// Shared secret for worker-facing maintenance endpoints.
	// Empty means development mode: everything is accepted.
	WorkerSecret string
}

func Load() (*Config, error) {
	cfg := &Config{}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.ListenAddr = strings.TrimSpace(getEnv("LISTEN_ADDR", defaultListenAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.StorageRoot = strings.TrimSpace(getEnv("STORAGE_ROOT", defaultStorageRoot))
	cfg.RenderURL = strings.TrimSpace(os.Getenv("RENDER_URL"))
	cfg.WorkerSecret = strings.TrimSpace(os.Getenv("WORKER_SECRET"))

	var err error
	cfg.MaxUploadSize, err = parseInt64Env("MAX_UPLOAD_SIZE", defaultMaxUploadSize)
	if err != nil {
		return nil, err
	}
	cfg.WorkerCount, err = parseIntEnv("THUMBNAIL_WORKERS", defaultWorkerCount)
	if err != nil {
		return nil, err
	}
	cfg.RenderTimeout, err = parseDurationEnv("RENDER_TIMEOUT", defaultRenderTimeout)
	if err != nil {
		return nil, err
	}
	cfg.StuckJobAfter, err = parseDurationEnv("THUMBNAIL_STUCK_AFTER", defaultStuckJobAfter)
	if err != nil {
		return nil, err
	}
	cfg.QueuePollInterval, err = parseDurationEnv("THUMBNAIL_QUEUE_POLL", defaultQueuePoll)
	if err != nil {
		return nil, err
	}
	cfg.PreviewSize, err = parseIntEnv("PREVIEW_SIZE", defaultPreviewSize)
	if err != nil {
		return nil, err
	}
	cfg.ThumbnailFrames, err = parseIntEnv("THUMBNAIL_FRAMES", defaultThumbnailFrames)
	if err != nil {
		return nil, err
	}
	cfg.ThumbnailAngle, err = parseFloatEnv("THUMBNAIL_ANGLE", defaultThumbnailAngle)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.StorageRoot == "" {
		return fmt.Errorf("STORAGE_ROOT must not be empty")
	}
	if cfg.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be > 0")
	}
	if cfg.WorkerCount <= 0 {
		return fmt.Errorf("THUMBNAIL_WORKERS must be > 0")
	}
	if cfg.RenderTimeout <= 0 {
		return fmt.Errorf("RENDER_TIMEOUT must be > 0")
	}
	if cfg.StuckJobAfter <= 0 {
		return fmt.Errorf("THUMBNAIL_STUCK_AFTER must be > 0")
	}
	if cfg.QueuePollInterval <= 0 {
		return fmt.Errorf("THUMBNAIL_QUEUE_POLL must be > 0")
	}
	if cfg.PreviewSize <= 0 {
		return fmt.Errorf("PREVIEW_SIZE must be > 0")
	}
	if cfg.ThumbnailFrames <= 0 {
		return fmt.Errorf("THUMBNAIL_FRAMES must be > 0")
	}

	if isProdLike(cfg.AppEnv) {
		if cfg.RenderURL == "" {
			return fmt.Errorf("in prod/release RENDER_URL must be set")
		}
		if cfg.WorkerSecret == "" {
			return fmt.Errorf("in prod/release WORKER_SECRET must be set")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseInt64Env(name, fallback string) (int64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseFloatEnv(name, fallback string) (float64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return f, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
