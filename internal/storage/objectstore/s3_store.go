// Package objectstore implements interfaces.ObjectStore against an
// S3-compatible backend (Cloudflare R2, MinIO, AWS S3 itself). Retries are
// classified per interfaces.ObjectStoreErrorKind: transient network/5xx
// failures back off and retry, invalid-metadata failures retry once without
// user metadata, and everything else is fatal.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/interfaces"
)

// Store is the S3-compatible ObjectStore implementation.
type Store struct {
	client    *s3.Client
	bucket    string
	cdnHost   string
	logger    arbor.ILogger
	maxRetry  int
	baseDelay time.Duration
}

var _ interfaces.ObjectStore = (*Store)(nil)

// Config carries the connection details for one ObjectStore instance.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	CDNHost         string
	UsePathStyle    bool
}

// New builds an ObjectStore client against the given endpoint.
func New(ctx context.Context, cfg Config, logger arbor.ILogger) (*Store, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint == "" {
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}
			return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: cfg.Region}, nil
		},
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		cdnHost:   cfg.CDNHost,
		logger:    logger,
		maxRetry:  3,
		baseDelay: 250 * time.Millisecond,
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string, userMetadata map[string]string) error {
	return s.withRetry(ctx, key, userMetadata, func(meta map[string]string) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
			Metadata:    meta,
		})
		return err
	})
}

func (s *Store) PutStream(ctx context.Context, key string, body interfaces.ReadSeekCloser, size int64, contentType string, userMetadata map[string]string) error {
	defer body.Close()
	return s.withRetry(ctx, key, userMetadata, func(meta map[string]string) error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          body,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(contentType),
			Metadata:      meta,
		})
		return err
	})
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.classify(key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &interfaces.ObjectStoreError{Kind: interfaces.ErrKindTransient, Key: key, Err: err}
	}
	return data, nil
}

func (s *Store) Head(ctx context.Context, key string) (interfaces.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return interfaces.ObjectInfo{}, s.classify(key, err)
	}

	info := interfaces.ObjectInfo{Key: key}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.ETag != nil {
		info.ETag = strings.Trim(*out.ETag, `"`)
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

func (s *Store) List(ctx context.Context, prefix string, maxKeys int) ([]interfaces.ObjectInfo, error) {
	var out []interfaces.ObjectInfo
	var continuationToken *string

	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, s.classify(prefix, err)
		}

		for _, obj := range page.Contents {
			info := interfaces.ObjectInfo{Key: aws.ToString(obj.Key)}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.ETag != nil {
				info.ETag = strings.Trim(*obj.ETag, `"`)
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			out = append(out, info)
			if maxKeys > 0 && len(out) >= maxKeys {
				return out, nil
			}
		}

		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuationToken = page.NextContinuationToken
	}

	return out, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if err == nil {
		return true, nil
	}
	var oerr *interfaces.ObjectStoreError
	if errors.As(err, &oerr) && oerr.Kind == interfaces.ErrKindNotFound {
		return false, nil
	}
	return false, err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.classify(key, err)
	}
	return nil
}

func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigner := s3.NewPresignClient(s.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", s.classify(key, err)
	}
	return req.URL, nil
}

func (s *Store) PublicURL(key string) string {
	if s.cdnHost != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimSuffix(s.cdnHost, "/"), strings.TrimPrefix(key, "/"))
	}
	return fmt.Sprintf("/%s", strings.TrimPrefix(key, "/"))
}

// withRetry runs op up to maxRetry+1 times, reuploading without user
// metadata on the one retry attempt triggered by ErrKindInvalidMetadata, and
// backing off exponentially for ErrKindTransient.
func (s *Store) withRetry(ctx context.Context, key string, meta map[string]string, op func(map[string]string) error) error {
	currentMeta := meta
	var lastErr error

	for attempt := 0; attempt <= s.maxRetry; attempt++ {
		err := op(currentMeta)
		if err == nil {
			return nil
		}

		classified := s.classify(key, err)
		var oerr *interfaces.ObjectStoreError
		if errors.As(classified, &oerr) {
			switch oerr.Kind {
			case interfaces.ErrKindInvalidMetadata:
				if currentMeta != nil {
					s.logger.Warn().Str("key", key).Msg("retrying upload without user metadata")
					currentMeta = nil
					continue
				}
				return classified
			case interfaces.ErrKindTransient:
				lastErr = classified
				delay := s.baseDelay * time.Duration(1<<uint(attempt))
				s.logger.Warn().Str("key", key).Int("attempt", attempt+1).Dur("delay", delay).Msg("transient object store error, retrying")
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			default:
				return classified
			}
		}
		lastErr = classified
	}

	return lastErr
}

// classify maps an AWS SDK error into an ObjectStoreError with a retry kind.
func (s *Store) classify(key string, err error) error {
	if err == nil {
		return nil
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.HTTPStatusCode() == http.StatusNotFound:
			return &interfaces.ObjectStoreError{Kind: interfaces.ErrKindNotFound, Key: key, Err: err}
		case respErr.HTTPStatusCode() == http.StatusBadRequest && strings.Contains(err.Error(), "Metadata"):
			return &interfaces.ObjectStoreError{Kind: interfaces.ErrKindInvalidMetadata, Key: key, Err: err}
		case respErr.HTTPStatusCode() >= 500 || respErr.HTTPStatusCode() == http.StatusTooManyRequests:
			return &interfaces.ObjectStoreError{Kind: interfaces.ErrKindTransient, Key: key, Err: err}
		}
	}

	if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey") {
		return &interfaces.ObjectStoreError{Kind: interfaces.ErrKindNotFound, Key: key, Err: err}
	}
	if strings.Contains(err.Error(), "connection") || strings.Contains(err.Error(), "timeout") {
		return &interfaces.ObjectStoreError{Kind: interfaces.ErrKindTransient, Key: key, Err: err}
	}

	return &interfaces.ObjectStoreError{Kind: interfaces.ErrKindFatal, Key: key, Err: err}
}
