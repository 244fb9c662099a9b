package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the subset of *s3.Client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads snapshots to an S3-compatible bucket. The latest
// snapshot is always written to Key; with History set, a copy named after
// the snapshot id goes under the key's directory as well.
type S3Destination struct {
	client  s3API
	bucket  string
	key     string
	history bool
}

// NewS3Destination creates an S3 destination. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string, history bool) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return newS3Destination(s3.NewFromConfig(cfg, s3opts...), bucket, key, history), nil
}

func newS3Destination(c s3API, bucket, key string, history bool) *S3Destination {
	return &S3Destination{client: c, bucket: bucket, key: key, history: history}
}

// Write uploads the artifact.
func (d *S3Destination) Write(ctx context.Context, a *Artifact) error {
	keys := []string{d.key}
	if d.history {
		keys = append(keys, path.Join(path.Dir(d.key), "history", a.ID+"."+string(a.Format)))
	}
	for _, key := range keys {
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(d.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(a.Data),
			ContentType: aws.String(a.Format.ContentType()),
			Metadata: map[string]string{
				"snapshot-id":   a.ID,
				"graph-version": strconv.FormatUint(a.Version, 10),
				"layout-key":    a.LayoutKey,
			},
		})
		if err != nil {
			return fmt.Errorf("s3 put object %s: %w", key, err)
		}
	}
	return nil
}
