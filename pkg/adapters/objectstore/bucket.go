package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Bucket is the read side of an object store.
type Bucket interface {
	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Download writes the object's bytes to dst.
	Download(ctx context.Context, key string, dst *os.File) error
	Close() error
}

// Location is a parsed bucket URL such as s3://bucket/prefix/.
type Location struct {
	Scheme string
	Bucket string
	Prefix string
}

// ParseLocation parses s3://, gs:// and gcs:// URLs.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("invalid object store location %q: %w", raw, err)
	}
	switch u.Scheme {
	case "s3", "gs", "gcs":
	default:
		return Location{}, fmt.Errorf("invalid object store location %q: want s3://, gs:// or gcs://", raw)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("invalid object store location %q: missing bucket", raw)
	}
	return Location{Scheme: u.Scheme, Bucket: u.Host, Prefix: strings.TrimPrefix(u.Path, "/")}, nil
}
