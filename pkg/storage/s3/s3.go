// Package s3 reads and writes event logs and results in Amazon S3 or an
// S3-compatible store.
package s3

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
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	lperrors "github.com/logflow/logprune/pkg/errors"
)

// MinPartSize is the smallest part S3 accepts in a multipart upload.
const MinPartSize = 5 * 1024 * 1024

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1").
	Region string

	// Endpoint overrides the default S3 endpoint (MinIO, LocalStack).
	Endpoint string

	// UsePathStyle forces path-style addressing.
	UsePathStyle bool

	// Static credentials; the default chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	OperationTimeout time.Duration
	TransferTimeout  time.Duration

	// PartSize is the multipart upload part size in bytes.
	PartSize int64
}

// DefaultConfig returns defaults for region.
func DefaultConfig(region string) Config {
	return Config{
		Region:           region,
		OperationTimeout: 30 * time.Second,
		TransferTimeout:  5 * time.Minute,
		PartSize:         MinPartSize,
	}
}

// Client wraps the AWS SDK client. Buckets are given per call.
type Client struct {
	cfg    Config
	client *s3.Client
}

// NewClient loads AWS configuration and creates a client. No request is made.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.PartSize < MinPartSize {
		cfg.PartSize = MinPartSize
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = 5 * time.Minute
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, lperrors.Wrap(err, lperrors.CodeStorageFailed, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Client{cfg: cfg, client: client}, nil
}

// ObjectInfo holds the object metadata logprune uses.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// Reader opens an object for reading. Closing the reader ends the request.
func (c *Client) Reader(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TransferTimeout)

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, 0, objectError(err, bucket, key)
	}
	return &cancelOnClose{ReadCloser: out.Body, cancel: cancel}, aws.ToInt64(out.ContentLength), nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnClose) Close() error {
	defer r.cancel()
	return r.ReadCloser.Close()
}

// Stat returns object metadata.
func (c *Client) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, objectError(err, bucket, key)
	}
	return &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
	}, nil
}

// Writer returns a writer that uploads to bucket/key. Data is buffered up
// to PartSize; larger objects use a multipart upload. The object exists
// once Close returns nil.
func (c *Client) Writer(ctx context.Context, bucket, key, contentType string) io.WriteCloser {
	return &writer{c: c, ctx: ctx, bucket: bucket, key: key, contentType: contentType}
}

type writer struct {
	c           *Client
	ctx         context.Context
	bucket      string
	key         string
	contentType string

	mu       sync.Mutex
	buf      bytes.Buffer
	uploadID string
	parts    []types.CompletedPart
	closed   bool
	err      error
}

func (w *writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.New("s3: write after close")
	}
	if w.err != nil {
		return 0, w.err
	}

	w.buf.Write(p)
	for int64(w.buf.Len()) >= w.c.cfg.PartSize {
		if err := w.uploadPart(w.buf.Next(int(w.c.cfg.PartSize))); err != nil {
			w.err = err
			return len(p), err
		}
	}
	return len(p), nil
}

func (w *writer) uploadPart(data []byte) error {
	ctx, cancel := context.WithTimeout(w.ctx, w.c.cfg.TransferTimeout)
	defer cancel()

	if w.uploadID == "" {
		out, err := w.c.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket:      aws.String(w.bucket),
			Key:         aws.String(w.key),
			ContentType: aws.String(w.contentType),
		})
		if err != nil {
			return objectError(err, w.bucket, w.key)
		}
		w.uploadID = aws.ToString(out.UploadId)
	}

	num := int32(len(w.parts) + 1)
	out, err := w.c.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(w.bucket),
		Key:        aws.String(w.key),
		UploadId:   aws.String(w.uploadID),
		PartNumber: aws.Int32(num),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return objectError(fmt.Errorf("upload part %d: %w", num, err), w.bucket, w.key)
	}
	w.parts = append(w.parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(num)})
	return nil
}

func (w *writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.err
	}
	w.closed = true
	if w.err != nil {
		w.abort()
		return w.err
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.c.cfg.TransferTimeout)
	defer cancel()

	if w.uploadID == "" {
		_, err := w.c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(w.bucket),
			Key:         aws.String(w.key),
			Body:        bytes.NewReader(w.buf.Bytes()),
			ContentType: aws.String(w.contentType),
		})
		if err != nil {
			w.err = objectError(err, w.bucket, w.key)
		}
		return w.err
	}

	if w.buf.Len() > 0 {
		if err := w.uploadPart(w.buf.Bytes()); err != nil {
			w.err = err
			w.abort()
			return err
		}
	}

	_, err := w.c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(w.bucket),
		Key:             aws.String(w.key),
		UploadId:        aws.String(w.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: w.parts},
	})
	if err != nil {
		w.err = objectError(err, w.bucket, w.key)
		w.abort()
	}
	return w.err
}

// abort discards the parts of a failed multipart upload.
func (w *writer) abort() {
	if w.uploadID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.c.cfg.OperationTimeout)
	defer cancel()
	w.c.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(w.bucket),
		Key:      aws.String(w.key),
		UploadId: aws.String(w.uploadID),
	})
}

// objectError maps missing objects to CodeFileNotFound and everything else
// to CodeStorageFailed.
func objectError(err error, bucket, key string) error {
	uri := "s3://" + bucket + "/" + key
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return lperrors.FileNotFound(uri)
	}
	return lperrors.Wrap(err, lperrors.CodeStorageFailed, "S3 request failed").WithContext("uri", uri)
}
