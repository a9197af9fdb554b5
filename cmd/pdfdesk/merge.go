package main

import (
    "bytes"
    "fmt"
    "io"
    "os"
    "path/filepath"

    "github.com/spf13/cobra"

    "github.com/local/pdfdesk/internal/filestore"
    "github.com/local/pdfdesk/internal/pdf"
    "github.com/local/pdfdesk/internal/service"
)

var mergeOut string

var mergeCmd = &cobra.Command{
    Use:   "merge -o out.pdf a.pdf b.pdf [more.pdf...]",
    Short: "Merge PDF files locally with the same engine the service uses",
    Args:  cobra.MinimumNArgs(2),
    RunE: func(cmd *cobra.Command, args []string) error {
        if mergeOut == "" {
            return fmt.Errorf("an output file is required (-o)")
        }
        dir, err := os.MkdirTemp("", "pdfdesk-merge-")
        if err != nil {
            return err
        }
        defer os.RemoveAll(dir)

        store, err := filestore.New(filestore.Options{
            UploadDir: filepath.Join(dir, "uploads"),
            OutputDir: filepath.Join(dir, "outputs"),
        })
        if err != nil {
            return err
        }
        defer store.Close()
        svc := service.New(store, pdf.NewCodec(), service.Options{
            ParseTimeout:     cfg.Document.ParseTimeout,
            SerializeTimeout: cfg.Document.SerializeTimeout,
            MaxFiles:         len(args),
        })

        files := make([]*os.File, 0, len(args))
        defer func() {
            for _, f := range files {
                f.Close()
            }
        }()
        for _, path := range args {
            f, err := os.Open(path)
            if err != nil {
                return err
            }
            files = append(files, f)
        }
        next := func() (service.Incoming, error) {
            if len(files) == 0 {
                return service.Incoming{}, io.EOF
            }
            f := files[0]
            files = files[1:]
            defer f.Close()
            data, err := io.ReadAll(f)
            if err != nil {
                return service.Incoming{}, err
            }
            return service.Incoming{Name: filepath.Base(f.Name()), Body: bytes.NewReader(data)}, nil
        }
        up, err := svc.Upload(cmd.Context(), "cli", next)
        if err != nil {
            return err
        }
        if len(up.Files) != len(args) {
            return fmt.Errorf("%d of %d inputs are not PDF or image files", len(args)-len(up.Files), len(args))
        }
        ids := make([]string, len(up.Files))
        for i, f := range up.Files {
            ids[i] = f.ID
        }
        res, err := svc.Merge(cmd.Context(), service.MergeRequest{FileIDs: ids})
        if err != nil {
            return err
        }
        _, data, err := store.ReadFile(res.FileID)
        if err != nil {
            return err
        }
        if err := os.WriteFile(mergeOut, data, 0o644); err != nil {
            return err
        }
        fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d pages, %d bytes)\n", mergeOut, res.PageCount, res.Size)
        return nil
    },
}

func init() {
    mergeCmd.Flags().StringVarP(&mergeOut, "output", "o", "", "output file")
    rootCmd.AddCommand(mergeCmd)
}
