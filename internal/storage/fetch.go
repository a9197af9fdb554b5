package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfdesk/internal/apperr"
)

// ObjectAPI is the part of the S3 client the fetcher needs.
type ObjectAPI interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Options configures a Fetcher.
type Options struct {
	AllowHTTP bool
	AllowS3   bool
	// MaxBytes bounds any single download.
	MaxBytes   int64
	HTTPClient *http.Client
	// S3 is created from the default AWS config on first use when nil.
	S3 ObjectAPI
}

// Fetcher downloads remote documents referenced as s3://bucket/key or
// http(s):// URLs.
type Fetcher struct {
	opts Options

	mu sync.Mutex
	s3 ObjectAPI
}

// Object is a downloaded payload.
type Object struct {
	Name string
	Data []byte
}

func NewFetcher(opts Options) *Fetcher {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{opts: opts, s3: opts.S3}
}

// Fetch downloads ref. Disallowed schemes and oversized objects are
// InvalidInput / TooLarge; transport failures are wrapped as NotFound when
// the remote says so and Internal otherwise.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (Object, error) {
	// Strip optional #fragment
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	switch {
	case strings.HasPrefix(ref, "s3://"):
		if !f.opts.AllowS3 {
			return Object{}, apperr.New(apperr.InvalidInput, "S3 import is disabled.")
		}
		bucket, key, err := ParseS3(ref)
		if err != nil {
			return Object{}, err
		}
		return f.fetchS3(ctx, bucket, key)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		if !f.opts.AllowHTTP {
			return Object{}, apperr.New(apperr.InvalidInput, "URL import is disabled.")
		}
		return f.fetchHTTP(ctx, ref)
	default:
		return Object{}, apperr.New(apperr.InvalidInput, "Unsupported import reference.")
	}
}

// ParseS3 splits s3://bucket/key.
func ParseS3(ref string) (bucket, key string, err error) {
	p := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(p, "/")
	if slash <= 0 || slash == len(p)-1 {
		return "", "", apperr.New(apperr.InvalidInput, "Invalid S3 reference %q.", ref)
	}
	return p[:slash], p[slash+1:], nil
}

func (f *Fetcher) client(ctx context.Context) (ObjectAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.s3 != nil {
		return f.s3, nil
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	f.s3 = s3.NewFromConfig(cfg)
	return f.s3, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, bucket, key string) (Object, error) {
	cli, err := f.client(ctx)
	if err != nil {
		return Object{}, apperr.Wrap(apperr.Internal, err, "s3 client")
	}
	head, err := cli.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return Object{}, apperr.Wrap(apperr.NotFound, err, "Remote file not found.")
	}
	size := aws.ToInt64(head.ContentLength)
	if f.opts.MaxBytes > 0 && size > f.opts.MaxBytes {
		return Object{}, apperr.New(apperr.TooLarge, "File too large. Maximum size is %dMB.", f.opts.MaxBytes>>20)
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
	n, err := manager.NewDownloader(cli).Download(ctx, buf, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return Object{}, apperr.Wrap(apperr.Internal, err, "s3 download")
	}

	name := path.Base(key)
	// original filename travels as x-amz-meta-name on some uploaders
	for _, k := range []string{"name", "Name"} {
		if v, ok := head.Metadata[k]; ok && v != "" {
			name = v
			break
		}
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded s3 object")
	return Object{Name: name, Data: buf.Bytes()[:n]}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (Object, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Object{}, apperr.New(apperr.InvalidInput, "Invalid URL.")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Object{}, apperr.Wrap(apperr.InvalidInput, err, "Invalid URL.")
	}
	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		return Object{}, apperr.Wrap(apperr.Internal, err, "http download")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Object{}, apperr.New(apperr.NotFound, "Remote file not found.")
	}
	if resp.StatusCode != http.StatusOK {
		return Object{}, apperr.Wrap(apperr.Internal, fmt.Errorf("http %d", resp.StatusCode), "http download")
	}

	body := io.Reader(resp.Body)
	if f.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Object{}, apperr.Wrap(apperr.Internal, err, "http download")
	}
	if f.opts.MaxBytes > 0 && int64(len(data)) > f.opts.MaxBytes {
		return Object{}, apperr.New(apperr.TooLarge, "File too large. Maximum size is %dMB.", f.opts.MaxBytes>>20)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = ""
	}
	log.Info().Str("host", u.Host).Int("bytes", len(data)).Msg("downloaded remote file")
	return Object{Name: name, Data: data}, nil
}

var errNoS3 = errors.New("storage: s3 client unavailable")

// Ping checks that bucket is reachable; it is used by readiness checks.
func (f *Fetcher) Ping(ctx context.Context, bucket string) error {
	if !f.opts.AllowS3 {
		return errNoS3
	}
	cli, err := f.client(ctx)
	if err != nil {
		return err
	}
	hb, ok := cli.(interface {
		HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	})
	if !ok {
		return errNoS3
	}
	_, err = hb.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return err
}
