package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type memoryWriter struct {
	bucket      string
	object      string
	contentType string
	metadata    map[string]string
	buf         bytes.Buffer
	closed      bool
	closeErr    error
}

func (m *memoryWriter) Write(p []byte) (int, error) { return m.buf.Write(p) }

func (m *memoryWriter) Close() error {
	m.closed = true
	return m.closeErr
}

func (m *memoryWriter) setMetadata(contentType string, metadata map[string]string) {
	m.contentType = contentType
	m.metadata = metadata
}

func TestReceiptArchiveStoresJSON(t *testing.T) {
	var written *memoryWriter
	archive, err := newReceiptArchive("returns-receipts", func(_ context.Context, bucket, object string) objectWriter {
		written = &memoryWriter{bucket: bucket, object: object}
		return written
	})
	if err != nil {
		t.Fatalf("new archive: %v", err)
	}

	uri, err := archive.StoreReceipt(context.Background(), "ret_1", "refund.json", map[string]any{"amount": 5400})
	if err != nil {
		t.Fatalf("store receipt: %v", err)
	}
	if uri != "gs://returns-receipts/returns/ret_1/refund.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	if written.object != "returns/ret_1/refund.json" || !written.closed {
		t.Fatalf("unexpected writer state %#v", written)
	}
	if written.contentType != "application/json" || written.metadata["return_id"] != "ret_1" {
		t.Fatalf("unexpected metadata %q %#v", written.contentType, written.metadata)
	}
	var decoded map[string]any
	if err := json.Unmarshal(written.buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded["amount"] != float64(5400) {
		t.Fatalf("unexpected payload %#v", decoded)
	}
}

func TestReceiptArchiveSurfacesCloseError(t *testing.T) {
	archive, _ := newReceiptArchive("bucket", func(context.Context, string, string) objectWriter {
		return &memoryWriter{closeErr: errors.New("permission denied")}
	})
	if _, err := archive.StoreReceipt(context.Background(), "ret_1", "carrier-payment.json", map[string]any{}); err == nil {
		t.Fatal("expected close error")
	}
}

func TestReceiptArchiveRejectsTraversal(t *testing.T) {
	archive, _ := newReceiptArchive("bucket", func(context.Context, string, string) objectWriter {
		t.Fatal("writer should not be created")
		return nil
	})
	if _, err := archive.StoreReceipt(context.Background(), "ret_1", "../x.json", nil); err == nil {
		t.Fatal("expected invalid path error")
	}
	if _, err := newReceiptArchive(" ", nil); err == nil {
		t.Fatal("expected bucket validation error")
	}
}
