package main

import (
    "encoding/json"
    "fmt"
    "os"

    "github.com/spf13/cobra"

    "github.com/local/pdfdesk/internal/filetype"
    "github.com/local/pdfdesk/internal/pdf"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
    Use:   "inspect [file.pdf]",
    Short: "Print the page count and page geometry of a PDF",
    Args:  cobra.ExactArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        kind, _, err := filetype.ValidateFile(args[0])
        if err != nil {
            return err
        }
        if kind != filetype.PDF {
            return fmt.Errorf("%s is not a PDF (detected %s)", args[0], kind)
        }
        data, err := os.ReadFile(args[0])
        if err != nil {
            return err
        }
        pages, err := pdf.Inspect(data)
        if err != nil {
            return fmt.Errorf("inspect %s: %w", args[0], err)
        }
        out := cmd.OutOrStdout()
        if inspectJSON {
            enc := json.NewEncoder(out)
            enc.SetIndent("", "  ")
            return enc.Encode(map[string]any{"pageCount": len(pages), "pages": pages})
        }
        fmt.Fprintf(out, "%s: %d pages\n", args[0], len(pages))
        for _, p := range pages {
            fmt.Fprintf(out, "  %3d  %7.1f x %-7.1f  rotate %d\n", p.Index+1, p.Width, p.Height, p.Rotation)
        }
        return nil
    },
}

func init() {
    inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output in JSON format")
    rootCmd.AddCommand(inspectCmd)
}
