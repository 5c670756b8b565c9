package filesystem

import "time"

// Config contains image storage configuration.
type Config struct {
	Dir             string        `env:"STORAGE_DIR"              envDefault:"data/images"`
	PublicBaseURL   string        `env:"STORAGE_PUBLIC_BASE_URL"  envDefault:"/images"`
	DownloadTimeout time.Duration `env:"STORAGE_DOWNLOAD_TIMEOUT" envDefault:"60s"`
	MaxImageBytes   int64         `env:"STORAGE_MAX_IMAGE_BYTES"  envDefault:"20971520"`
}
