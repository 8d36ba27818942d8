package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/xaenox/relaybot/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Storage stores one object per thread in a flat bucket namespace and
// uses ETags with conditional writes for optimistic concurrency.
type S3Storage struct {
	client S3API
	bucket string
	tracer trace.Tracer
	logger *zap.Logger
}

func NewS3Storage(client S3API, bucket string, logger *zap.Logger) *S3Storage {
	if client == nil {
		panic("storage: s3 client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Storage{
		client: client,
		bucket: bucket,
		tracer: otel.Tracer("relaybot.internal.storage.s3"),
		logger: logger,
	}
}

func (s *S3Storage) Load(ctx context.Context, threadID string) (*models.ThreadHistory, error) {
	key := ObjectKey(threadID)
	ctx, span := s.tracer.Start(ctx, "storage.load_history", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("storage: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("storage: s3 read %s: %w", key, err)
	}

	history, err := DecodeHistory(data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	history.Version = aws.ToString(out.ETag)
	return history, nil
}

func (s *S3Storage) Save(ctx context.Context, threadID string, history *models.ThreadHistory, expectedVersion string) (string, error) {
	key := ObjectKey(threadID)
	ctx, span := s.tracer.Start(ctx, "storage.save_history", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	data, err := EncodeHistory(history)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if expectedVersion == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(expectedVersion)
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		span.RecordError(err)
		if isPreconditionFailure(err) {
			s.logger.Warn("History write lost a race",
				zap.String("thread_id", threadID),
				zap.String("expected_version", expectedVersion))
			return "", fmt.Errorf("%w: %s", ErrConflict, key)
		}
		return "", fmt.Errorf("storage: s3 put %s: %w", key, err)
	}
	return aws.ToString(out.ETag), nil
}

func (s *S3Storage) Close() error {
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isPreconditionFailure(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
