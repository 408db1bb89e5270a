package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-ingest/internal/categorize"
	"github.com/dvloznov/finance-ingest/internal/csvimport"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/emailreceipt"
	"github.com/dvloznov/finance-ingest/internal/gcsuploader"
	"github.com/dvloznov/finance-ingest/internal/logger"
	"github.com/dvloznov/finance-ingest/internal/receipt"
	"github.com/dvloznov/finance-ingest/internal/store"
)

var fixedNow = func() time.Time { return time.Date(2025, time.June, 22, 10, 0, 0, 0, time.UTC) }

const amexCSV = `Date,Description,Card Member,Account #,Amount,Extended Details,Appears On Your Statement As,Address,City/State,Zip Code,Country,Reference,Category
06/01/2025,STARBUCKS STORE 123,JANE DOE,-1001,25.00,Coffee,STARBUCKS,1 Main St,SEATTLE WA,98101,UNITED STATES,'320251',Restaurant-Coffee
06/02/2025,AMAZON REFUND,JANE DOE,-1001,-10.00,,,,,,,,
bad-date,SOMETHING,JANE DOE,-1001,5.00
06/03/2025,STRAY ROW
06/04/2025,ZERO CHARGE,JANE DOE,-1001,0.00`

func newTestService(t *testing.T, mutate func(d *Deps)) (*Service, *store.Store) {
	t.Helper()
	st := store.Open(context.Background(), nil, store.WithLogger(logger.Nop()))
	deps := Deps{Store: st, Logger: logger.Nop(), Now: fixedNow}
	if mutate != nil {
		mutate(&deps)
	}
	return NewService(deps), st
}

// hungBackend never answers writes or fingerprint lookups before ctx expires.
type hungBackend struct {
	*store.MemoryBackend
}

func (hungBackend) PutIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (hungBackend) HasDuplicateKey(ctx context.Context, key string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestUploadCSV_HungBackendCostsOneTimeout(t *testing.T) {
	const timeout = 50 * time.Millisecond
	st := store.Open(context.Background(), hungBackend{store.NewMemoryBackend()},
		store.WithTimeout(timeout), store.WithCooldown(time.Minute), store.WithLogger(logger.Nop()))
	svc := NewService(Deps{Store: st, Logger: logger.Nop(), Now: fixedNow})

	var b strings.Builder
	b.WriteString("Date,Description,Card Member,Account #,Amount\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "06/%02d/2025,MERCHANT %d,JANE DOE,-1001,%d.00\n", i%28+1, i, i+1)
	}

	start := time.Now()
	res, err := svc.UploadCSV(context.Background(), UploadRequest{Content: b.String(), FileName: "big.csv", BankType: "amex"})
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Equal(t, 40, res.SavedCount)
	assert.Equal(t, 40, st.Len())
	assert.Less(t, elapsed, 10*timeout, "upload took %s", elapsed)
}

func TestUploadCSV_IdempotentReupload(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()
	req := UploadRequest{Content: amexCSV, FileName: "amex.csv", BankType: "AMEX"}

	first, err := svc.UploadCSV(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "CSV processed successfully", first.Message)
	assert.Equal(t, "amex", first.BankType)
	assert.Equal(t, "Complete", first.Processing)
	assert.Equal(t, 2, first.TotalTransactions)
	assert.Equal(t, 2, first.SavedCount)
	assert.Equal(t, 0, first.DuplicateCount)
	assert.Equal(t, 3, first.SkippedRows)
	assert.Regexp(t, `^upload_1750586400000_[0-9a-f]{9}$`, first.UploadID)

	second, err := svc.UploadCSV(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.UploadID, second.UploadID)
	assert.Equal(t, 2, second.TotalTransactions)
	assert.Equal(t, 0, second.SavedCount)
	assert.Equal(t, 2, second.DuplicateCount)
	assert.Equal(t, 2, st.Len())
}

func TestUploadCSV_Errors(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.UploadCSV(ctx, UploadRequest{Content: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.UploadCSV(ctx, UploadRequest{Content: "Date,Description,Amount\n"})
	assert.ErrorIs(t, err, csvimport.ErrTooFewLines)

	_, err = svc.UploadCSV(ctx, UploadRequest{Content: "Foo,Bar\n1,2"})
	var colErr *csvimport.ColumnError
	require.True(t, errors.As(err, &colErr), "got %v", err)
	assert.Equal(t, csvimport.RoleDate, colErr.Role)
}

func TestUploadCSV_CategorizeAndArchive(t *testing.T) {
	blobs := gcsuploader.NewMemoryStore()
	svc, st := newTestService(t, func(d *Deps) {
		d.CategorizeUploads = true
		d.Blobs = blobs
	})

	res, err := svc.UploadCSV(context.Background(), UploadRequest{
		Content:  "Date,Description,Amount\n2025-06-01,STARBUCKS #42,-4.50\n2025-06-02,ACME PAYROLL,2000.00",
		FileName: "bank.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, csvimport.BankGeneric, res.BankType)
	assert.Equal(t, 2, res.SavedCount)
	assert.Equal(t, "mem://uploads/"+res.UploadID+"/bank.csv", res.ArchiveURI)
	assert.Equal(t, 1, blobs.Len())

	txs := st.Query(store.QueryOptions{UploadID: res.UploadID})
	require.Len(t, txs, 2)
	assert.Equal(t, "Income", txs[0].PrimaryCategory())
	assert.Equal(t, "Salary/Wages", txs[0].PrimarySubcategory())
	assert.Equal(t, "Food and Drink", txs[1].PrimaryCategory())
	assert.Greater(t, txs[1].Confidence, 0.0)
}

func TestDeleteUploadAndList(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	res, err := svc.UploadCSV(ctx, UploadRequest{Content: amexCSV, BankType: "amex"})
	require.NoError(t, err)

	list, err := svc.ListTransactions(ctx, ListRequest{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, 2, list.TotalInDB)
	assert.Equal(t, civil.Date{Year: 2025, Month: time.June, Day: 2}, list.Transactions[0].Date)

	_, err = svc.ListTransactions(ctx, ListRequest{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.DeleteUpload(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	n, err := svc.DeleteUpload(ctx, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = svc.ListTransactions(ctx, ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Count)
}

func TestEnrich_Flags(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	_, err := st.Save(ctx, &domain.Transaction{
		ID:           "csv_1",
		Date:         civil.Date{Year: 2025, Month: time.June, Day: 1},
		Name:         "BEST BUY 00123",
		MerchantName: "Best Buy",
		Amount:       decimal.RequireFromString("-799.99"),
	})
	require.NoError(t, err)

	tx := &domain.Transaction{
		ID:           "email_1",
		Date:         civil.Date{Year: 2025, Month: time.June, Day: 3},
		Name:         "Your Best Buy order",
		MerchantName: "Best Buy",
		Amount:       decimal.RequireFromString("-799.99"),
	}
	svc.Enrich(tx, 0)

	assert.True(t, tx.HasFlag(categorize.FlagLargeTransaction))
	assert.False(t, tx.HasFlag(categorize.FlagLargeAmount))
	assert.True(t, tx.HasFlag(categorize.FlagPotentialDuplicate))

	// Enriching twice does not duplicate flags.
	n := len(tx.Flags)
	svc.Enrich(tx, 0)
	assert.Len(t, tx.Flags, n)
}

func receiptAnalysis(total string) *receipt.Analysis {
	return &receipt.Analysis{
		Summary:    receipt.Summary{Total: receipt.NewMoney(decimal.RequireFromString(total)), Date: "06/20/2025"},
		VendorInfo: receipt.VendorInfo{Name: "Whole Foods Market", Address: "525 N Lamar Blvd"},
		LineItems: []receipt.LineItem{
			{Description: "Bananas", TotalPrice: receipt.NewMoney(decimal.RequireFromString("3.50"))},
			{Description: "Salmon", TotalPrice: receipt.NewMoney(decimal.RequireFromString("20.00"))},
			{Description: "Bag refund", TotalPrice: receipt.NewMoney(decimal.Zero)},
		},
	}
}

func TestProcessReceipt(t *testing.T) {
	blobs := gcsuploader.NewMemoryStore()
	var gotImage []byte
	var gotType string
	svc, st := newTestService(t, func(d *Deps) {
		d.Blobs = blobs
		d.Analyzer = receipt.AnalyzerFunc(func(ctx context.Context, image []byte, mimeType string) (*receipt.Analysis, error) {
			gotImage, gotType = image, mimeType
			return receiptAnalysis("23.50"), nil
		})
	})

	res, err := svc.ProcessReceipt(context.Background(), ReceiptRequest{
		ImageData: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("fake-image")),
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("fake-image"), gotImage)
	assert.Equal(t, DefaultReceiptFileType, gotType)
	assert.Equal(t, DefaultReceiptFileName, res.FileName)
	assert.Regexp(t, `^mem://receipts/1750586400000_[0-9a-f]{9}_receipt\.jpg$`, res.ImageURI)
	assert.Equal(t, 1, blobs.Len())

	assert.Equal(t, "-23.50", res.Transaction.Amount.StringFixed(2))
	assert.Equal(t, domain.SourceReceiptOCR, res.Transaction.Source)
	assert.Equal(t, civil.Date{Year: 2025, Month: time.June, Day: 20}, res.Transaction.Date)
	require.Len(t, res.LineItems, 2)
	assert.Equal(t, res.Transaction.ID, res.LineItems[0].ParentID)
	assert.Equal(t, 3, st.Len())
}

func TestProcessReceipt_FromStoredImage(t *testing.T) {
	ctx := context.Background()
	blobs := gcsuploader.NewMemoryStore()
	uri, err := blobs.Put(ctx, "receipts/old_receipt.jpg", []byte("stored-image"), DefaultReceiptFileType)
	require.NoError(t, err)

	var gotImage []byte
	svc, st := newTestService(t, func(d *Deps) {
		d.Blobs = blobs
		d.Analyzer = receipt.AnalyzerFunc(func(ctx context.Context, image []byte, mimeType string) (*receipt.Analysis, error) {
			gotImage = image
			return receiptAnalysis("23.50"), nil
		})
	})

	res, err := svc.ProcessReceipt(ctx, ReceiptRequest{ImageURI: uri})
	require.NoError(t, err)

	assert.Equal(t, []byte("stored-image"), gotImage)
	assert.Equal(t, uri, res.ImageURI)
	assert.Equal(t, "old_receipt.jpg", res.FileName)
	assert.Equal(t, 1, blobs.Len(), "reprocessing must not store the image again")
	assert.Equal(t, 3, st.Len())

	_, err = svc.ProcessReceipt(ctx, ReceiptRequest{ImageURI: "mem://receipts/missing.jpg"})
	assert.ErrorContains(t, err, "fetching")

	noBlobs, _ := newTestService(t, nil)
	_, err = noBlobs.ProcessReceipt(ctx, ReceiptRequest{ImageURI: uri})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestProcessReceipt_Errors(t *testing.T) {
	ctx := context.Background()
	image := base64.StdEncoding.EncodeToString([]byte("img"))

	svc, _ := newTestService(t, func(d *Deps) {
		d.Analyzer = receipt.AnalyzerFunc(func(ctx context.Context, image []byte, mimeType string) (*receipt.Analysis, error) {
			return receiptAnalysis("0"), nil
		})
	})
	_, err := svc.ProcessReceipt(ctx, ReceiptRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ProcessReceipt(ctx, ReceiptRequest{ImageData: "not base64!"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ProcessReceipt(ctx, ReceiptRequest{ImageData: image})
	assert.ErrorIs(t, err, receipt.ErrZeroTotal)

	failing, _ := newTestService(t, func(d *Deps) {
		d.Analyzer = receipt.AnalyzerFunc(func(ctx context.Context, image []byte, mimeType string) (*receipt.Analysis, error) {
			return nil, errors.New("quota exceeded")
		})
	})
	_, err = failing.ProcessReceipt(ctx, ReceiptRequest{ImageData: image})
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestIngestEmail(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()
	msg := emailreceipt.Message{
		MessageID: "m-3",
		From:      "Blue Bottle <receipts@bluebottlecoffee.com>",
		Subject:   "Your receipt",
		Body:      "Thanks for ordering from Blue Bottle\nDate: 06/12/2025\nAmount charged: $12.75",
		Date:      fixedNow(),
	}

	res, err := svc.IngestEmail(ctx, msg)
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, "email_m-3", res.Transaction.ID)

	res, err = svc.IngestEmail(ctx, msg)
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Equal(t, 1, st.Len())

	_, err = svc.IngestEmail(ctx, emailreceipt.Message{MessageID: "n", From: "news@blog.io", Subject: "Weekly digest"})
	assert.ErrorIs(t, err, emailreceipt.ErrNotReceipt)

	_, err = svc.IngestEmail(ctx, emailreceipt.Message{Subject: "Your receipt"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDecodeImageData(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8})
	for _, in := range []string{raw, "data:image/jpeg;base64," + raw, "  " + raw + "\n"} {
		got, err := DecodeImageData(in)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xff, 0xd8}, got)
	}
}
