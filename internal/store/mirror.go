package store

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// PutObjectAPI is the slice of the S3 client the mirror needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads finished run directories to s3://bucket/prefix/<dir>/.
type S3Mirror struct {
	client PutObjectAPI
	bucket string
	prefix string
}

var _ Mirror = (*S3Mirror)(nil)

// NewS3Mirror creates a mirror using client.
func NewS3Mirror(client PutObjectAPI, bucket, prefix string) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket, prefix: prefix}
}

// NewS3MirrorFromDefault builds the S3 client from the default AWS
// credential chain.
func NewS3MirrorFromDefault(ctx context.Context, bucket, prefix string) (*S3Mirror, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3Mirror(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// Key returns the object key of one artifact.
func (m *S3Mirror) Key(run *Run, name string) string {
	return path.Join(m.prefix, run.Dir, name)
}

// MirrorRun uploads every regular file in dir.
func (m *S3Mirror) MirrorRun(ctx context.Context, dir string, run *Run) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list run dir: %w", err)
	}
	uploaded := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := m.upload(ctx, filepath.Join(dir, e.Name()), m.Key(run, e.Name())); err != nil {
			return err
		}
		uploaded++
	}
	log.Info().
		Str("runId", run.ID).
		Str("bucket", m.bucket).
		Int("files", uploaded).
		Msg("Run mirrored to S3")
	return nil
}

func (m *S3Mirror) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(file), err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(file))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}
	log.Debug().Str("key", key).Msg("Artifact uploaded")
	return nil
}
