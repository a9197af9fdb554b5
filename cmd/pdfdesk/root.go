package main

import (
    "context"
    "fmt"
    "os"

    "github.com/joho/godotenv"
    "github.com/spf13/cobra"

    cfgpkg "github.com/local/pdfdesk/internal/config"
)

var (
    envFile string
    cfg     cfgpkg.Config
)

var rootCmd = &cobra.Command{
    Use:   "pdfdesk",
    Short: "Ephemeral PDF utility service",
    Long: `pdfdesk merges, splits, organizes, compresses and converts PDF documents.
Uploaded and generated files are tracked in memory and removed after a short lifetime.`,
    SilenceUsage: true,
    PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
        // a missing .env is fine, the environment may already be set
        if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
            return fmt.Errorf("load %s: %w", envFile, err)
        }
        cfg = cfgpkg.FromEnv()
        return nil
    },
}

// Execute runs the root command.
func Execute() {
    if err := rootCmd.ExecuteContext(context.Background()); err != nil {
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
}

func init() {
    rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
}
