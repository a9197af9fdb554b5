package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
    MinLevel      string
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
    Addr            string
    ReadTimeout     time.Duration
    WriteTimeout    time.Duration
    ShutdownTimeout time.Duration
    MaxJSONBytes    int64
    TrustProxy      bool
}

// FilesConfig defines the ephemeral store.
type FilesConfig struct {
    UploadDir     string
    OutputDir     string
    // TTL and SweepInterval are fixed, not read from the environment.
    TTL           time.Duration
    SweepInterval time.Duration
    MaxFileBytes  int64
    MaxFiles      int
    // PurgeStaleAfter removes leftovers of a previous run at startup.
    PurgeStaleAfter time.Duration
}

// LimitsConfig defines per-client rate limits.
type LimitsConfig struct {
    Enabled     bool
    Window      time.Duration
    APIMax      int
    UploadMax   int
}

// DocumentConfig bounds document work.
type DocumentConfig struct {
    ParseTimeout      time.Duration
    SerializeTimeout  time.Duration
    RenderConcurrency int
    RenderTimeout     time.Duration
}

// RedisConfig is optional; without it rate limits are kept in memory.
type RedisConfig struct {
    URL string
}

// ImportConfig controls remote imports.
type ImportConfig struct {
    AllowHTTP bool
    AllowS3   bool
    S3Bucket  string
    Timeout   time.Duration
}

// Config is the top-level configuration.
type Config struct {
    Logging  LoggingConfig
    Axiom    AxiomConfig
    Server   ServerConfig
    Files    FilesConfig
    Limits   LimitsConfig
    Document DocumentConfig
    Redis    RedisConfig
    Import   ImportConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/pdfdesk.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_pdfdesk",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
        MinLevel:      getEnv("AXIOM_MIN_LEVEL", "info"),
    }

    cfg.Server = ServerConfig{
        Addr:            ":" + getEnv("PORT", "3000"),
        ReadTimeout:     parseDuration(getEnv("HTTP_READ_TIMEOUT", "5m"), 5*time.Minute),
        WriteTimeout:    parseDuration(getEnv("HTTP_WRITE_TIMEOUT", "5m"), 5*time.Minute),
        ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "15s"), 15*time.Second),
        MaxJSONBytes:    int64(parseInt(getEnv("MAX_JSON_MB", "100"), 100)) << 20,
        TrustProxy:      parseBool(getEnv("TRUST_PROXY", "false")),
    }
    if addr := getEnv("LISTEN_ADDR", ""); addr != "" { cfg.Server.Addr = addr }

    cfg.Files = FilesConfig{
        UploadDir:       getEnv("UPLOAD_DIR", "temp_uploads"),
        OutputDir:       getEnv("OUTPUT_DIR", "temp_outputs"),
        TTL:             30 * time.Minute,
        SweepInterval:   60 * time.Second,
        MaxFileBytes:    int64(parseInt(getEnv("MAX_FILE_MB", "50"), 50)) << 20,
        MaxFiles:        parseInt(getEnv("MAX_FILES", "50"), 50),
        PurgeStaleAfter: parseDuration(getEnv("PURGE_STALE_AFTER", "30m"), 30*time.Minute),
    }

    cfg.Limits = LimitsConfig{
        Enabled:   parseBool(getEnv("RATE_LIMIT", "true")),
        Window:    parseDuration(getEnv("RATE_LIMIT_WINDOW", "15m"), 15*time.Minute),
        APIMax:    parseInt(getEnv("RATE_LIMIT_API_MAX", "100"), 100),
        UploadMax: parseInt(getEnv("RATE_LIMIT_UPLOAD_MAX", "20"), 20),
    }

    cfg.Document = DocumentConfig{
        ParseTimeout:      parseDuration(getEnv("PARSE_TIMEOUT", "30s"), 30*time.Second),
        SerializeTimeout:  parseDuration(getEnv("SERIALIZE_TIMEOUT", "60s"), 60*time.Second),
        RenderConcurrency: parseInt(getEnv("RENDER_CONCURRENCY", "4"), 4),
        RenderTimeout:     parseDuration(getEnv("RENDER_TIMEOUT", "2m"), 2*time.Minute),
    }

    cfg.Redis = RedisConfig{URL: getEnv("REDIS_URL", "")}

    cfg.Import = ImportConfig{
        AllowHTTP: parseBool(getEnv("IMPORT_ALLOW_HTTP", "false")),
        AllowS3:   parseBool(getEnv("IMPORT_ALLOW_S3", "false")),
        S3Bucket:  getEnv("S3_BUCKET", ""),
        Timeout:   parseDuration(getEnv("IMPORT_TIMEOUT", "60s"), 60*time.Second),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
