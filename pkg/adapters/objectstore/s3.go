package objectstore

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"
)

type s3Bucket struct {
	client     *s3.Client
	downloader *manager.Downloader
	bucket     string
}

// OpenS3 builds an S3 bucket client from a source's options:
// region, endpoint, path_style and access_key_id (with the secret in Credentials).
// Without an access key the default AWS credential chain is used.
func OpenS3(ctx context.Context, desc core.SourceDescriptor, loc Location) (Bucket, error) {
	var opts []func(*config.LoadOptions) error

	if region := desc.Option("region", ""); region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if keyID := desc.Option("access_key_id", ""); keyID != "" {
		secret, err := adapter.ResolveCredential(desc.Credentials)
		if err != nil {
			return nil, err
		}
		opts = append(opts, config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{AccessKeyID: keyID, SecretAccessKey: secret, Source: "leapdata"}, nil
			})))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint := desc.Option("endpoint", ""); endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if pathStyle, _ := strconv.ParseBool(desc.Option("path_style", "false")); pathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &s3Bucket{
		client:     client,
		downloader: manager.NewDownloader(client),
		bucket:     loc.Bucket,
	}, nil
}

func (b *s3Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", b.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (b *s3Bucket) Download(ctx context.Context, key string, dst *os.File) error {
	_, err := b.downloader.Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download s3://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *s3Bucket) Close() error { return nil }
