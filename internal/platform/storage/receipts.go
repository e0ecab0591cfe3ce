package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

type objectWriterFactory func(ctx context.Context, bucket, object string) objectWriter

type objectWriter interface {
	io.Writer
	Close() error
	setMetadata(contentType string, metadata map[string]string)
}

// ReceiptArchive writes JSON receipts of carrier payments and refunds to Cloud Storage.
type ReceiptArchive struct {
	bucket    string
	newWriter objectWriterFactory
}

// NewReceiptArchive constructs an archive writing into bucket.
func NewReceiptArchive(client *gcs.Client, bucket string) (*ReceiptArchive, error) {
	if client == nil {
		return nil, errors.New("storage receipts: client is required")
	}
	return newReceiptArchive(bucket, func(ctx context.Context, bucket, object string) objectWriter {
		return &gcsWriter{w: client.Bucket(bucket).Object(object).NewWriter(ctx)}
	})
}

func newReceiptArchive(bucket string, factory objectWriterFactory) (*ReceiptArchive, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage receipts: bucket is required")
	}
	return &ReceiptArchive{bucket: bucket, newWriter: factory}, nil
}

// StoreReceipt encodes payload as JSON under returns/<returnID>/<name> and returns the gs:// URI.
func (a *ReceiptArchive) StoreReceipt(ctx context.Context, returnID, name string, payload any) (string, error) {
	if a == nil || a.newWriter == nil {
		return "", errors.New("storage receipts: archive not initialised")
	}
	object, err := receiptObject(returnID, name)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("storage receipts: encode %s: %w", object, err)
	}

	w := a.newWriter(ctx, a.bucket, object)
	w.setMetadata("application/json", map[string]string{"return_id": strings.TrimSpace(returnID)})
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage receipts: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage receipts: close %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}

type gcsWriter struct {
	w *gcs.Writer
}

func (g *gcsWriter) Write(p []byte) (int, error) { return g.w.Write(p) }
func (g *gcsWriter) Close() error                { return g.w.Close() }

func (g *gcsWriter) setMetadata(contentType string, metadata map[string]string) {
	g.w.ContentType = contentType
	g.w.Metadata = metadata
}
