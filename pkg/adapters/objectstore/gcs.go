package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"cloud.google.com/go/storage"
	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type gcsBucket struct {
	client *storage.Client
	bucket string
}

// OpenGCS builds a GCS bucket client. Credentials, when set, resolve to a
// service account JSON key; otherwise application default credentials apply.
func OpenGCS(ctx context.Context, desc core.SourceDescriptor, loc Location) (Bucket, error) {
	var opts []option.ClientOption

	if desc.Credentials != "" {
		key, err := adapter.ResolveCredential(desc.Credentials)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsJSON([]byte(key)))
	}
	if endpoint := desc.Option("endpoint", ""); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if anon, _ := strconv.ParseBool(desc.Option("anonymous", "false")); anon {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &gcsBucket{client: client, bucket: loc.Bucket}, nil
}

func (b *gcsBucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", b.bucket, prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (b *gcsBucket) Download(ctx context.Context, key string, dst *os.File) error {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open gs://%s/%s: %w", b.bucket, key, err)
	}
	defer func() { _ = r.Close() }()

	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("failed to download gs://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *gcsBucket) Close() error { return b.client.Close() }
