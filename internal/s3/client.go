package s3

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	MinPartSizeMB    = 5
	MinPartSizeBytes = MinPartSizeMB * 1024 * 1024
)

// ErrNotExist is returned by read operations when the requested key does not
// exist in the bucket.
var ErrNotExist = errors.New("s3: object does not exist")

type Options struct {
	Endpoint           string
	Region             string
	AccessKey          string
	SecretKey          string
	Bucket             string
	Prefix             string
	InsecureSkipVerify bool
}

type Client struct {
	client *s3.Client
	bucket string
	prefix string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	endpointURL, err := url.Parse(strings.TrimSpace(opts.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("s3 endpoint: %w", err)
	}
	if endpointURL.Scheme == "" {
		endpointURL.Scheme = "https"
		endpointURL, _ = url.Parse(endpointURL.String())
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               endpointURL.String(),
			SigningRegion:     opts.Region,
			HostnameImmutable: true,
		}, nil
	})

	cfg := aws.Config{
		Region:                      opts.Region,
		EndpointResolverWithOptions: resolver,
		Credentials:                 credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
	}

	httpClient := http.DefaultClient
	if opts.InsecureSkipVerify {
		httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.HTTPClient = httpClient
	})

	return &Client{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
	}, nil
}

func (c *Client) Key(relative string) string {
	relative = strings.Trim(relative, "/")
	if c.prefix == "" {
		return relative
	}
	return path.Join(c.prefix, relative)
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) Prefix() string {
	return c.prefix
}

// URI returns the s3:// address of a relative key, for recording in metadata.
func (c *Client) URI(relative string) string {
	return "s3://" + path.Join(c.bucket, c.Key(relative))
}

func (c *Client) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	fullKey := c.Key(key)
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(fullKey),
		Body:          body,
		ContentLength: aws.Int64(contentLength),
	})
	return err
}

// PutObjectIfAbsent writes the object only if the key does not already exist,
// using the store's If-None-Match precondition. It returns false with a nil
// error when another writer got there first.
func (c *Client) PutObjectIfAbsent(ctx context.Context, key string, body io.Reader, contentLength int64) (bool, error) {
	fullKey := c.Key(key)
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(fullKey),
		Body:          body,
		ContentLength: aws.Int64(contentLength),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	fullKey := c.Key(key)
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, fullKey)
		}
		return nil, err
	}
	return out.Body, nil
}

func (c *Client) GetObjectBytes(ctx context.Context, key string) ([]byte, error) {
	body, err := c.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// HeadObject reports the last-modified time of the key, or nil when the key
// does not exist.
func (c *Client) HeadObject(ctx context.Context, key string) (*time.Time, error) {
	fullKey := c.Key(key)
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return out.LastModified, nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	mod, err := c.HeadObject(ctx, key)
	if err != nil {
		return false, err
	}
	return mod != nil, nil
}

// DeleteObject removes the key. Deleting an absent key is not an error.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	fullKey := c.Key(key)
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	})
	return err
}

// ListObjects returns keys under the prefix, relative to the client's
// configured root prefix. maxKeys <= 0 lists everything.
func (c *Client) ListObjects(ctx context.Context, prefix string, maxKeys int32) ([]string, error) {
	fullPrefix := c.Key(prefix)
	if strings.HasSuffix(prefix, "/") && fullPrefix != "" && !strings.HasSuffix(fullPrefix, "/") {
		fullPrefix += "/"
	}
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(fullPrefix),
	}
	if maxKeys > 0 {
		input.MaxKeys = aws.Int32(maxKeys)
	}
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, c.stripPrefix(*obj.Key))
			}
		}
		if maxKeys > 0 && int32(len(keys)) >= maxKeys {
			break
		}
	}
	return keys, nil
}

func (c *Client) stripPrefix(fullKey string) string {
	if c.prefix == "" {
		return fullKey
	}
	return strings.TrimPrefix(strings.TrimPrefix(fullKey, c.prefix), "/")
}

// CreateBucket makes the configured bucket. A bucket that already exists and
// is owned by the caller is not an error.
func (c *Client) CreateBucket(ctx context.Context) error {
	_, err := c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		var exists *types.BucketAlreadyExists
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) Client() *s3.Client {
	return c.client
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "PreconditionFailed" || code == "ConditionalRequestConflict"
	}
	return false
}
