package statuscheck

import (
    "context"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
    Ping(ctx context.Context) error
}

// BucketPinger checks that an S3 bucket is reachable.
type BucketPinger interface {
    Ping(ctx context.Context, bucket string) error
}

// Checker aggregates readiness checks for the service.
type Checker struct {
    dirs     map[string]string
    redis    RedisPinger
    s3       BucketPinger
    s3Bucket string
    tracked  func() int
}

// Options configures the Checker.
type Options struct {
    UploadDir string
    OutputDir string
    Redis     RedisPinger
    S3        BucketPinger
    S3Bucket  string
    // Tracked reports how many files the store holds.
    Tracked func() int
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK       bool   `json:"ok"`
    Message  string `json:"message"`
    Optional bool   `json:"optional,omitempty"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    OK           bool   `json:"ok"`
    Uploads      Status `json:"uploads"`
    Outputs      Status `json:"outputs"`
    Redis        Status `json:"redis"`
    S3           Status `json:"s3"`
    TrackedFiles int    `json:"trackedFiles"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    return &Checker{
        dirs:     map[string]string{"uploads": opts.UploadDir, "outputs": opts.OutputDir},
        redis:    opts.Redis,
        s3:       opts.S3,
        s3Bucket: opts.S3Bucket,
        tracked:  opts.Tracked,
    }
}

// Summary returns the current status snapshot. Only the two storage
// directories decide overall readiness; Redis and S3 are optional.
func (c *Checker) Summary(ctx context.Context) Summary {
    s := Summary{
        Uploads: checkDir(c.dirs["uploads"]),
        Outputs: checkDir(c.dirs["outputs"]),
        Redis:   c.checkRedis(ctx),
        S3:      c.checkS3(ctx),
    }
    if c.tracked != nil {
        s.TrackedFiles = c.tracked()
    }
    s.OK = s.Uploads.OK && s.Outputs.OK
    return s
}

func checkDir(dir string) Status {
    if dir == "" {
        return Status{OK: false, Message: "not configured"}
    }
    f, err := os.CreateTemp(dir, ".health-*")
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    name := f.Name()
    _ = f.Close()
    if err := os.Remove(name); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: fmt.Sprintf("writable (%s)", filepath.Base(dir))}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
    if c.redis == nil {
        return Status{OK: false, Optional: true, Message: "not configured, using in-memory rate limits"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.redis.Ping(ctx); err != nil {
        return Status{OK: false, Optional: true, Message: trimError(err)}
    }
    return Status{OK: true, Optional: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
    if c.s3 == nil || c.s3Bucket == "" {
        return Status{OK: false, Optional: true, Message: "Bucket not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := c.s3.Ping(ctx, c.s3Bucket); err != nil {
        return Status{OK: false, Optional: true, Message: trimError(err)}
    }
    return Status{OK: true, Optional: true, Message: "Connected"}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
