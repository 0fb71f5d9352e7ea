package backup

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// Destination is where downloaded artifacts land. The registry streams
// controller payloads into one while hashing; a failed verification
// deletes the stored copy again.
type Destination interface {
	// Store writes the artifact from reader and returns bytes written.
	Store(filename string, reader io.Reader) (int64, error)

	// Open reads a previously stored artifact.
	Open(filename string) (io.ReadCloser, error)

	// Delete removes a stored artifact.
	Delete(filename string) error

	// List returns all stored artifacts at the destination.
	List() ([]StoredFile, error)

	// Type returns the destination type identifier.
	Type() string
}

// StoredFile describes one artifact at a destination.
type StoredFile struct {
	Filename  string
	SizeBytes int64
	CreatedAt int64 // Unix timestamp
}

// DestinationConfig contains connection settings for a destination.
type DestinationConfig struct {
	Type string // "local", "sftp", "s3"
	Path string // Base path for artifacts

	// SFTP specific
	SFTPHost        string
	SFTPPort        int
	SFTPUsername    string
	SFTPPassword    string
	SFTPKeyPath     string
	KnownHostsPath  string
	TrustOnFirstUse bool

	// S3 specific
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string // Optional, for S3-compatible storage
}

// NewDestination creates a destination from config.
func NewDestination(config *DestinationConfig) (Destination, error) {
	switch config.Type {
	case "local":
		return NewLocalDestination(config.Path), nil
	case "sftp":
		return NewSFTPDestination(config)
	case "s3":
		return NewS3Destination(config)
	default:
		return nil, fmt.Errorf("unsupported destination type: %s", config.Type)
	}
}

// ParseDestination turns a destination spec into a config:
//
//	/var/backups                    local directory
//	s3://bucket/prefix              S3 (credentials from config/env)
//	sftp://user@host:2022/backups   SFTP
func ParseDestination(spec string) (*DestinationConfig, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty destination")
	}
	if !strings.Contains(spec, "://") {
		return &DestinationConfig{Type: "local", Path: spec}, nil
	}

	u, err := url.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid destination %q: %w", spec, err)
	}

	switch u.Scheme {
	case "s3":
		return &DestinationConfig{
			Type:     "s3",
			S3Bucket: u.Host,
			Path:     strings.TrimPrefix(u.Path, "/"),
		}, nil
	case "sftp":
		cfg := &DestinationConfig{
			Type:     "sftp",
			SFTPHost: u.Hostname(),
			SFTPPort: 22,
			Path:     u.Path,
		}
		if u.User != nil {
			cfg.SFTPUsername = u.User.Username()
			if pw, ok := u.User.Password(); ok {
				cfg.SFTPPassword = pw
			}
		}
		if p := u.Port(); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid sftp port in %q", spec)
			}
			cfg.SFTPPort = port
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("unsupported destination scheme: %s", u.Scheme)
	}
}
