package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-ingest/internal/app"
	"github.com/dvloznov/finance-ingest/internal/ingest"
	"github.com/dvloznov/finance-ingest/internal/logger"
	"github.com/dvloznov/finance-ingest/internal/notionsync"
)

// appFactory builds the wired application for one command run.
type appFactory func(ctx context.Context) (*app.App, error)

func newRootCommand(newApp appFactory, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "finance-ingest",
		Short: "Import, list and export personal finance transactions",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	rootCmd.AddCommand(
		newImportCSVCommand(newApp),
		newTransactionsCommand(newApp),
		newDeleteUploadCommand(newApp),
		newReceiptCommand(newApp),
		newSyncBankLinkCommand(newApp),
		newExportNotionCommand(newApp),
	)
	return rootCmd
}

// withApp opens the application, runs fn and prints its result as JSON.
func withApp(cmd *cobra.Command, newApp appFactory, fn func(ctx context.Context, a *app.App) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer a.Close()

	res, err := fn(ctx, a)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func newImportCSVCommand(newApp appFactory) *cobra.Command {
	var file, bank string

	cmd := &cobra.Command{
		Use:   "import-csv",
		Short: "Import a bank CSV export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			return withApp(cmd, newApp, func(ctx context.Context, a *app.App) (any, error) {
				return a.Service.UploadCSV(ctx, ingest.UploadRequest{
					Content:  string(content),
					FileName: filepath.Base(file),
					BankType: bank,
				})
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to the CSV file (required)")
	_ = cmd.MarkFlagRequired("file")
	cmd.Flags().StringVar(&bank, "bank", "generic", "bank format: amex, truist or generic")

	return cmd
}

func newTransactionsCommand(newApp appFactory) *cobra.Command {
	var start, end, uploadID string
	var limit int

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List stored transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := parseDateFlag("start", start)
			if err != nil {
				return err
			}
			endDate, err := parseDateFlag("end", end)
			if err != nil {
				return err
			}
			return withApp(cmd, newApp, func(ctx context.Context, a *app.App) (any, error) {
				return a.Service.ListTransactions(ctx, ingest.ListRequest{
					Start:    startDate,
					End:      endDate,
					UploadID: uploadID,
					Limit:    limit,
				})
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last date, YYYY-MM-DD")
	cmd.Flags().StringVar(&uploadID, "upload-id", "", "only transactions of this upload")
	cmd.Flags().IntVar(&limit, "limit", ingest.DefaultListLimit, "maximum number of transactions")

	return cmd
}

func newDeleteUploadCommand(newApp appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-upload <upload-id>",
		Short: "Delete every transaction of one upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, newApp, func(ctx context.Context, a *app.App) (any, error) {
				n, err := a.Service.DeleteUpload(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return map[string]any{"uploadId": args[0], "deletedCount": n}, nil
			})
		},
	}
}

func newReceiptCommand(newApp appFactory) *cobra.Command {
	var file, uri string

	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Run OCR on a receipt image and store it",
		Long:  "Run OCR on a local receipt image, or reprocess one already in the blob store with --uri.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ingest.ReceiptRequest{ImageURI: uri}
			if file != "" {
				image, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading %s: %w", file, err)
				}
				req = ingest.ReceiptRequest{
					ImageData: base64.StdEncoding.EncodeToString(image),
					FileName:  filepath.Base(file),
					FileType:  mime.TypeByExtension(filepath.Ext(file)),
				}
			}
			return withApp(cmd, newApp, func(ctx context.Context, a *app.App) (any, error) {
				return a.Service.ProcessReceipt(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to the receipt image")
	cmd.Flags().StringVar(&uri, "uri", "", "URI of a stored receipt image to reprocess")
	cmd.MarkFlagsOneRequired("file", "uri")
	cmd.MarkFlagsMutuallyExclusive("file", "uri")

	return cmd
}

func newSyncBankLinkCommand(newApp appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-banklink",
		Short: "Pull new transactions from the bank link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, newApp, func(ctx context.Context, a *app.App) (any, error) {
				return a.SyncBankLink(ctx)
			})
		},
	}
}

func newExportNotionCommand(newApp appFactory) *cobra.Command {
	var start, end string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "export-notion",
		Short: "Mirror stored transactions into the Notion database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := parseDateFlag("start", start)
			if err != nil {
				return err
			}
			endDate, err := parseDateFlag("end", end)
			if err != nil {
				return err
			}
			return withApp(cmd, newApp, func(ctx context.Context, a *app.App) (any, error) {
				client, err := a.NotionClient()
				if err != nil {
					return nil, err
				}
				ctx = logger.WithContext(ctx, a.Log)
				return notionsync.ExportTransactions(ctx, a.Store, client, a.Config.Notion.DatabaseID, startDate, endDate, dryRun)
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last date, YYYY-MM-DD")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")

	return cmd
}

func parseDateFlag(name, value string) (*civil.Date, error) {
	if value == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: expected YYYY-MM-DD", name, value)
	}
	return &d, nil
}
