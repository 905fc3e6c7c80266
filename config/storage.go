package config

import "time"

// StorageConfig contains object storage configuration for case files and
// generated export archives.
type StorageConfig struct {
	Region          string `env:"REGION"            envDefault:"us-east-1"`
	Bucket          string `env:"BUCKET"            envDefault:"casedesk-files"`
	Endpoint        string `env:"ENDPOINT"          envDefault:""` // Set for MinIO or other S3-compatible stores
	AccessKeyID     string `env:"ACCESS_KEY_ID"     envDefault:""`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" envDefault:""`
	ForcePathStyle  bool   `env:"FORCE_PATH_STYLE"  envDefault:"false"`

	// SignTTL is how long generated download links stay valid.
	SignTTL time.Duration `env:"SIGN_TTL" envDefault:"168h"` // 7 days
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	if s.SignTTL < time.Minute {
		s.SignTTL = time.Minute
	}
}
