// Package objects exposes an S3 bucket as the "objects" namespace.
//
// Vars (args are JSON arrays):
//
//	objects/get    ["key", enc?]          -> object body as a JSON string
//	objects/put    ["key", "body", enc?]  -> {"key": ..., "etag": ..., "size": ...}
//	objects/list   [] | ["prefix"]        -> sorted list of keys
//	objects/delete ["key"]                -> true
//
// enc is "text" (the default) or "base64". A text get of a body that is not
// valid UTF-8 fails with ErrNotText instead of altering the bytes.
package objects

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/podsock/internal/logger"
	"github.com/marmos91/podsock/pkg/metrics"
	"github.com/marmos91/podsock/pkg/registry"
)

// Namespace is the registry prefix of the vars served by Store.
const Namespace = "objects"

// DefaultMaxObjectBytes caps objects/get so a large object cannot exhaust
// memory while building a response.
const DefaultMaxObjectBytes = 8 << 20

// Body encodings accepted by objects/get and objects/put.
const (
	EncodingText   = "text"
	EncodingBase64 = "base64"
)

var (
	// ErrNotFound is returned for a key missing from the bucket.
	ErrNotFound = errors.New("object not found")

	// ErrTooLarge is returned when an object exceeds MaxObjectBytes.
	ErrTooLarge = errors.New("object too large")

	// ErrNotText is returned by a text get of a body that is not valid UTF-8.
	ErrNotText = errors.New("object body is not valid UTF-8")
)

// API is the subset of the S3 client used by Store.
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// StoreConfig configures a Store around an existing client.
type StoreConfig struct {
	Client    API
	Bucket    string
	KeyPrefix string

	// MaxObjectBytes caps objects/get. Default: DefaultMaxObjectBytes
	MaxObjectBytes int64

	Metrics metrics.StoreMetrics
}

// Store serves objects from one bucket under an optional key prefix.
type Store struct {
	client    API
	bucket    string
	keyPrefix string
	maxBytes  int64
	metrics   metrics.StoreMetrics
}

// NewStore checks that the bucket is reachable and returns a Store.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("objects: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("objects: bucket is required")
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("objects: bucket %q not accessible: %w", cfg.Bucket, err)
	}

	if cfg.MaxObjectBytes <= 0 {
		cfg.MaxObjectBytes = DefaultMaxObjectBytes
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopStoreMetrics()
	}

	logger.Info("objects namespace ready: bucket=%s prefix=%q", cfg.Bucket, cfg.KeyPrefix)

	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		maxBytes:  cfg.MaxObjectBytes,
		metrics:   cfg.Metrics,
	}, nil
}

// Register adds the objects vars to b.
func (s *Store) Register(b *registry.Builder) error {
	return b.RegisterNamespace(Namespace, map[string]registry.Handler{
		"get":    registry.JSONFunc(s.handleGet),
		"put":    registry.JSONFunc(s.handlePut),
		"list":   registry.JSONFunc(s.handleList),
		"delete": registry.JSONFunc(s.handleDelete),
	})
}

func (s *Store) fullKey(key string) string {
	return s.keyPrefix + key
}

// Get downloads the object stored under key.
func (s *Store) Get(ctx context.Context, key string) (body []byte, err error) {
	defer s.record("get", time.Now(), &err)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err = io.ReadAll(io.LimitReader(out.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, key, s.maxBytes)
	}

	s.metrics.RecordBytes("get", int64(len(body)))
	return body, nil
}

// PutResult describes a stored object.
type PutResult struct {
	Key  string `json:"key"`
	ETag string `json:"etag,omitempty"`
	Size int    `json:"size"`
}

// Put uploads body under key.
func (s *Store) Put(ctx context.Context, key string, body []byte) (result *PutResult, err error) {
	defer s.record("put", time.Now(), &err)

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.fullKey(key)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put object %s: %w", key, err)
	}

	s.metrics.RecordBytes("put", int64(len(body)))
	return &PutResult{Key: key, ETag: strings.Trim(aws.ToString(out.ETag), `"`), Size: len(body)}, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer s.record("delete", time.Now(), &err)

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// List returns the keys under prefix with the store's key prefix removed.
func (s *Store) List(ctx context.Context, prefix string) (keys []string, err error) {
	defer s.record("list", time.Now(), &err)

	keys = []string{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			keys = append(keys, strings.TrimPrefix(*obj.Key, s.keyPrefix))
		}
	}
	return keys, nil
}

func (s *Store) record(op string, start time.Time, err *error) {
	s.metrics.RecordOperation(op, time.Since(start), *err)
}

// bodyArgs reads n string args followed by an optional body encoding.
func bodyArgs(args []json.RawMessage, n int) ([]string, string, error) {
	if len(args) != n+1 {
		strs, err := registry.StringArgs(args, n)
		return strs, EncodingText, err
	}

	strs, err := registry.StringArgs(args, n+1)
	if err != nil {
		return nil, "", err
	}
	switch enc := strs[n]; enc {
	case EncodingText, EncodingBase64:
		return strs[:n], enc, nil
	default:
		return nil, "", fmt.Errorf("unknown encoding %q", enc)
	}
}

func (s *Store) handleGet(ctx context.Context, args []json.RawMessage) (any, error) {
	strs, enc, err := bodyArgs(args, 1)
	if err != nil {
		return nil, err
	}
	body, err := s.Get(ctx, strs[0])
	if err != nil {
		return nil, err
	}

	if enc == EncodingBase64 {
		return base64.StdEncoding.EncodeToString(body), nil
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("%w: %s (request %q encoding)", ErrNotText, strs[0], EncodingBase64)
	}
	return string(body), nil
}

func (s *Store) handlePut(ctx context.Context, args []json.RawMessage) (any, error) {
	strs, enc, err := bodyArgs(args, 2)
	if err != nil {
		return nil, err
	}

	body := []byte(strs[1])
	if enc == EncodingBase64 {
		if body, err = base64.StdEncoding.DecodeString(strs[1]); err != nil {
			return nil, fmt.Errorf("invalid base64 body: %w", err)
		}
	}
	return s.Put(ctx, strs[0], body)
}

func (s *Store) handleList(ctx context.Context, args []json.RawMessage) (any, error) {
	prefix := ""
	if len(args) > 0 {
		strs, err := registry.StringArgs(args, 1)
		if err != nil {
			return nil, err
		}
		prefix = strs[0]
	}
	return s.List(ctx, prefix)
}

func (s *Store) handleDelete(ctx context.Context, args []json.RawMessage) (any, error) {
	strs, err := registry.StringArgs(args, 1)
	if err != nil {
		return nil, err
	}
	if err := s.Delete(ctx, strs[0]); err != nil {
		return nil, err
	}
	return true, nil
}
