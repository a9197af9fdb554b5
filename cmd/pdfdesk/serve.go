package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    "github.com/local/pdfdesk/internal/api"
    "github.com/local/pdfdesk/internal/filestore"
    "github.com/local/pdfdesk/internal/imagerender"
    "github.com/local/pdfdesk/internal/limiter"
    logpkg "github.com/local/pdfdesk/internal/logger"
    "github.com/local/pdfdesk/internal/metrics"
    "github.com/local/pdfdesk/internal/pdf"
    "github.com/local/pdfdesk/internal/service"
    "github.com/local/pdfdesk/internal/statuscheck"
    "github.com/local/pdfdesk/internal/storage"
)

var listenAddr string

var serveCmd = &cobra.Command{
    Use:   "serve",
    Short: "Run the HTTP service",
    RunE: func(cmd *cobra.Command, args []string) error {
        if listenAddr != "" {
            cfg.Server.Addr = listenAddr
        }
        return serve(cmd.Context())
    },
}

func init() {
    serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address, overrides PORT and LISTEN_ADDR")
    rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
    ctx, cancel := context.WithCancel(ctx)
    defer cancel()

    _ = logpkg.Init(logpkg.Options{
        Level:         cfg.Logging.Level,
        Pretty:        cfg.Logging.Pretty,
        File:          cfg.Logging.File,
        MaxSizeMB:     cfg.Logging.MaxSizeMB,
        MaxBackups:    cfg.Logging.MaxBackups,
        MaxAgeDays:    cfg.Logging.MaxAgeDays,
        Compress:      cfg.Logging.Compress,
        Service:       "pdfdesk",
        SendToAxiom:   cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:   cfg.Axiom.APIKey,
        AxiomOrgID:    cfg.Axiom.OrgID,
        AxiomDataset:  cfg.Axiom.Dataset,
        AxiomFlush:    cfg.Axiom.FlushInterval,
        AxiomMinLevel: cfg.Axiom.MinLevel,
    })
    defer logpkg.Close()
    metrics.Init()

    // File store
    store, err := filestore.New(filestore.Options{
        UploadDir:     cfg.Files.UploadDir,
        OutputDir:     cfg.Files.OutputDir,
        TTL:           cfg.Files.TTL,
        SweepInterval: cfg.Files.SweepInterval,
        MaxFileSize:   cfg.Files.MaxFileBytes,
    })
    if err != nil {
        return err
    }
    store.PurgeStale(cfg.Files.PurgeStaleAfter)
    store.Start()
    defer func() {
        if err := store.Close(); err != nil {
            log.Warn().Err(err).Msg("file store close")
        }
    }()

    // Rate limits: shared through Redis when configured, otherwise per process
    var (
        counter limiter.Counter
        pinger  statuscheck.RedisPinger
    )
    if cfg.Redis.URL != "" {
        rl, err := limiter.NewRedis(cfg.Redis.URL)
        if err != nil {
            log.Warn().Err(err).Msg("redis unavailable, using in-memory rate limits")
        } else {
            defer rl.Close()
            counter, pinger = rl, rl
        }
    }
    if counter == nil {
        mem := limiter.NewMemory(nil)
        go pruneLoop(ctx, mem, cfg.Limits.Window)
        counter = mem
    }

    fetcher := storage.NewFetcher(storage.Options{
        AllowHTTP:  cfg.Import.AllowHTTP,
        AllowS3:    cfg.Import.AllowS3,
        MaxBytes:   cfg.Files.MaxFileBytes,
        HTTPClient: &http.Client{Timeout: cfg.Import.Timeout},
    })
    var bucketPinger statuscheck.BucketPinger
    if cfg.Import.AllowS3 {
        bucketPinger = fetcher
    }

    svc := service.New(store, pdf.NewCodec(), service.Options{
        ParseTimeout:     cfg.Document.ParseTimeout,
        SerializeTimeout: cfg.Document.SerializeTimeout,
        RenderTimeout:    cfg.Document.RenderTimeout,
        MaxFiles:         cfg.Files.MaxFiles,
        Renderer:         imagerender.New(cfg.Document.RenderConcurrency),
        Fetcher:          fetcher,
    })

    deps := api.Dependencies{
        Service: svc,
        Health: statuscheck.New(statuscheck.Options{
            UploadDir: cfg.Files.UploadDir,
            OutputDir: cfg.Files.OutputDir,
            Redis:     pinger,
            S3:        bucketPinger,
            S3Bucket:  cfg.Import.S3Bucket,
            Tracked:   store.Len,
        }),
        MaxJSONBytes:   cfg.Server.MaxJSONBytes,
        MaxUploadBytes: int64(cfg.Files.MaxFiles+1) * cfg.Files.MaxFileBytes,
        TrustProxy:     cfg.Server.TrustProxy,
    }
    if cfg.Limits.Enabled {
        deps.APILimit = limiter.NewFixedWindow("api", cfg.Limits.APIMax, cfg.Limits.Window, counter)
        deps.UploadLimit = limiter.NewFixedWindow("upload", cfg.Limits.UploadMax, cfg.Limits.Window, counter)
    }

    srv := &http.Server{
        Addr:              cfg.Server.Addr,
        Handler:           api.New(deps).Handler(),
        ReadHeaderTimeout: 10 * time.Second,
        ReadTimeout:       cfg.Server.ReadTimeout,
        WriteTimeout:      cfg.Server.WriteTimeout,
    }

    errc := make(chan error, 1)
    go func() {
        logpkg.Lifecycle("http", "listening").Str("addr", cfg.Server.Addr).Str("version", version).Msg("HTTP server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errc <- err
        }
        close(errc)
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    defer signal.Stop(stop)
    select {
    case err := <-errc:
        if err != nil {
            return err
        }
    case sig := <-stop:
        logpkg.Lifecycle("http", "stopping").Str("signal", sig.String()).Msg("shutting down")
    }
    sctx, stopTimeout := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
    defer stopTimeout()
    if err := srv.Shutdown(sctx); err != nil {
        log.Warn().Err(err).Msg("http shutdown")
    }
    logpkg.Lifecycle("http", "stopped").Msg("shutdown complete")
    return nil
}

func pruneLoop(ctx context.Context, mem *limiter.Memory, every time.Duration) {
    t := time.NewTicker(every)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-t.C:
            if n := mem.Prune(); n > 0 {
                log.Debug().Int("windows", n).Msg("pruned rate limit windows")
            }
        }
    }
}
