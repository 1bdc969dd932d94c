package fetch

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Fetcher struct {
	client *s3.Client
}

// NewS3Fetcher builds an s3 client from AWS_* env vars. Returns nil when no
// credentials are configured; the dispatcher then rejects s3 locators.
func NewS3Fetcher(ctx context.Context) *S3Fetcher {
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")
	if accessKey == "" || secretKey == "" {
		return nil
	}

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(util.GetEnv("AWS_REGION")),
		config.WithBaseEndpoint(util.GetEnv("AWS_ENDPOINT")),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		logger.Error("Failed to load AWS config", "err", err)
		return nil
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &S3Fetcher{client: client}
}

// Fetch reads an s3://bucket/key locator.
func (f *S3Fetcher) Fetch(ctx context.Context, locator string) (string, error) {
	bucket, key, err := splitS3Locator(locator)
	if err != nil {
		return "", err
	}

	result, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get %s from s3: %w", locator, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", locator, err)
	}
	return string(data), nil
}

func splitS3Locator(locator string) (string, string, error) {
	rest := strings.TrimPrefix(locator, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 locator %q", locator)
	}
	return bucket, key, nil
}
