package thread

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewArchiveClient loads the default AWS configuration (environment,
// shared config file, instance role) and returns an S3 client for
// Archive to upload through.
func NewArchiveClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Archive uploads a completed thread's JSONL file to bucket under
// prefix/<thread-id>.jsonl, for long-term retention outside the local
// threads directory. This is opt-in: callers only reach this when the
// thread_archive config section is enabled.
func Archive(ctx context.Context, client *s3.Client, bucket, prefix string, l *Log) error {
	data, err := os.ReadFile(l.Path())
	if err != nil {
		return fmt.Errorf("read thread file: %w", err)
	}

	key := archiveKey(prefix, l.ID)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/jsonl"),
		Metadata:    map[string]string{"thread-id": l.ID},
	})
	if err != nil {
		return fmt.Errorf("upload thread %s to s3://%s/%s: %w", l.ID, bucket, key, err)
	}
	return nil
}

// archiveKey builds the S3 object key a thread's JSONL file is
// uploaded under.
func archiveKey(prefix, id string) string {
	return path.Join(prefix, id+".jsonl")
}
