package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/starford/capes/internal/checksum"
)

// S3Client abstracts the S3 API operations used by [S3Store].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures an S3-compatible media bucket.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string // empty for AWS; set for MinIO, R2 and friends
	Prefix          string
	PublicBaseURL   string // base of returned URLs; derived from bucket and region when empty
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
	Folder          string
}

// S3Store implements Store on Amazon S3 or any S3-compatible object store.
type S3Store struct {
	client  S3Client
	bucket  string
	prefix  string
	folder  string
	baseURL string
}

// NewS3Client builds an [s3.Client] from static options.
func NewS3Client(opts S3Options) *s3.Client {
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.PathStyle,
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     opts.AccessKeyID,
			SecretAccessKey: opts.SecretAccessKey,
			Source:          "capes-config",
		}
		o.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	}
	return s3.New(o)
}

// NewS3 creates an S3-backed Store using client.
func NewS3(client S3Client, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("media: s3 bucket is required")
	}
	base := opts.PublicBaseURL
	if base == "" {
		switch {
		case opts.Endpoint != "":
			base = joinURL(opts.Endpoint, opts.Bucket)
		case opts.Region != "":
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
		default:
			base = fmt.Sprintf("https://%s.s3.amazonaws.com", opts.Bucket)
		}
	}
	return &S3Store{
		client:  client,
		bucket:  opts.Bucket,
		prefix:  opts.Prefix,
		folder:  opts.Folder,
		baseURL: base,
	}, nil
}

// key builds the full S3 object key for the given relative key.
func (s *S3Store) key(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return s.prefix + "/" + rel
}

// Upload stores obj with PutObject, attaching a SHA-256 checksum so the
// bucket rejects corrupted bodies.
func (s *S3Store) Upload(ctx context.Context, obj Object) (string, error) {
	full := s.key(newKey(s.folder, obj))
	in := &s3.PutObjectInput{
		Bucket:         aws.String(s.bucket),
		Key:            aws.String(full),
		Body:           bytes.NewReader(obj.Data),
		ContentLength:  aws.Int64(int64(len(obj.Data))),
		ChecksumSHA256: aws.String(checksum.SumBase64(obj.Data)),
		Metadata:       map[string]string{"sha256": checksum.Sum(obj.Data)},
	}
	if obj.ContentType != "" {
		in.ContentType = aws.String(obj.ContentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("media: put %s: %w", full, err)
	}
	return joinURL(s.baseURL, full), nil
}

// Delete removes the object behind url via DeleteObject.
// S3 DeleteObject is already idempotent; NoSuchKey from compatible stores is
// treated the same way.
func (s *S3Store) Delete(ctx context.Context, url string) error {
	full, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("media: delete %s: %w", full, err)
	}
	return nil
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var _ Store = (*S3Store)(nil)
