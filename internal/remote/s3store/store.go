// Package s3store keeps the shared document as a single object in an
// S3-compatible bucket (AWS S3, Cloudflare R2, MinIO). Changes from other
// devices are detected by polling the object's ETag.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/domain"
)

// DefaultPollInterval is how often Subscribe checks the object for changes.
const DefaultPollInterval = 5 * time.Second

const maxObjectBytes = 8 << 20

// Config describes the bucket object holding the shared document.
type Config struct {
	Bucket string
	Key    string
	Region string
	// Endpoint overrides the service URL for S3-compatible providers.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PollInterval    time.Duration
}

// Store is a syncer.RemoteStore backed by one bucket object.
type Store struct {
	client       *s3.Client
	uploader     *manager.Uploader
	bucket       string
	key          string
	pollInterval time.Duration
	log          zerolog.Logger

	mu       sync.Mutex
	lastETag string
}

// Connect builds the S3 client from cfg. Static keys are used when both are
// set; otherwise the default AWS credential chain applies.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, errors.New("s3 bucket and key are required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		// S3-compatible providers reject the newer default checksum headers
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return New(client, cfg.Bucket, cfg.Key, cfg.PollInterval, log), nil
}

// New wraps an existing client.
func New(client *s3.Client, bucket, key string, pollInterval time.Duration, log zerolog.Logger) *Store {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Store{
		client:       client,
		uploader:     manager.NewUploader(client),
		bucket:       bucket,
		key:          key,
		pollInterval: pollInterval,
		log:          log.With().Str("client", "s3").Str("bucket", bucket).Str("key", key).Logger(),
	}
}

// Load downloads the document. It returns nil, nil when the object is absent.
func (s *Store) Load(ctx context.Context) (*domain.Document, error) {
	doc, _, err := s.get(ctx)
	return doc, err
}

func (s *Store) get(ctx context.Context) (*domain.Document, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if isNotFound(err) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to download shared document: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxObjectBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read shared document: %w", err)
	}
	doc, err := domain.DecodeDocument(body)
	if err != nil {
		return nil, "", err
	}
	return &doc, aws.ToString(out.ETag), nil
}

// Save uploads the document, replacing the object.
func (s *Store) Save(ctx context.Context, doc domain.Document) error {
	body, err := doc.Encode()
	if err != nil {
		return err
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload shared document: %w", err)
	}

	if etag := aws.ToString(out.ETag); etag != "" {
		s.mu.Lock()
		s.lastETag = etag
		s.mu.Unlock()
	}

	s.log.Debug().Uint64("revision", doc.Revision).Int("bytes", len(body)).Msg("Shared document uploaded")
	return nil
}

// Subscribe polls the object and calls fn whenever its ETag changes. The
// first poll delivers the current object.
func (s *Store) Subscribe(ctx context.Context, fn func(domain.Document)) (func(), error) {
	pollCtx, cancel := context.WithCancel(ctx)
	go s.poll(pollCtx, fn)
	return cancel, nil
}

func (s *Store) poll(ctx context.Context, fn func(domain.Document)) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	seen := ""
	for {
		if next, err := s.check(ctx, seen, fn); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Msg("Shared document poll failed")
		} else {
			seen = next
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check delivers the object when its ETag differs from seen and from this
// store's own last upload. It returns the ETag now considered seen.
func (s *Store) check(ctx context.Context, seen string, fn func(domain.Document)) (string, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if isNotFound(err) {
		return seen, nil
	}
	if err != nil {
		return seen, fmt.Errorf("failed to stat shared document: %w", err)
	}

	etag := aws.ToString(head.ETag)
	s.mu.Lock()
	own := etag != "" && etag == s.lastETag
	s.mu.Unlock()
	if etag == seen || own {
		return etag, nil
	}

	doc, gotETag, err := s.get(ctx)
	if err != nil {
		return seen, err
	}
	if doc == nil {
		return seen, nil
	}
	if gotETag == "" {
		gotETag = etag
	}

	s.log.Debug().Str("etag", gotETag).Uint64("revision", doc.Revision).Msg("Shared document changed")
	fn(*doc)
	return gotETag, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == 404
}
