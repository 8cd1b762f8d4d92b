// Package archive keeps the raw bytes of every imported document.
package archive

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/charmbracelet/log"
	"google.golang.org/api/option"
)

// Document kinds used in object keys.
const (
	KindStatement = "statements"
	KindInvoice   = "invoices"
)

type Archiver interface {
	// Put stores data and returns its URI. An empty URI means nothing was
	// stored.
	Put(ctx context.Context, companyID, kind, filename string, data []byte) (string, error)
}

// Nop discards documents. It is used when no bucket is configured.
type Nop struct{}

func (Nop) Put(context.Context, string, string, string, []byte) (string, error) {
	return "", nil
}

// ObjectKey is {prefix}/{company}/{kind}/{sha256[:16]}-{filename}. The content
// hash keeps re-uploads of the same file on the same key.
func ObjectKey(prefix, companyID, kind, filename string, data []byte) string {
	sum := sha256.Sum256(data)
	name := fmt.Sprintf("%x-%s", sum[:8], sanitize(filename))
	return strings.TrimPrefix(path.Join(prefix, companyID, kind, name), "/")
}

func sanitize(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == "/" || base == "" {
		return "document"
	}
	return strings.ReplaceAll(base, " ", "_")
}

type GCS struct {
	logger *log.Logger
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a storage client. Without a credentials file the client uses
// Application Default Credentials.
func NewGCS(ctx context.Context, logger *log.Logger, bucket, prefix, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{logger: logger, client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCS) Put(ctx context.Context, companyID, kind, filename string, data []byte) (string, error) {
	key := ObjectKey(g.prefix, companyID, kind, filename, data)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType(filename)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload of %s: %w", key, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", g.bucket, key)
	g.logger.Debug("archived document", "uri", uri, "bytes", len(data))
	return uri, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xml":
		return "application/xml"
	case ".ofx", ".ofc", ".txt", ".csv":
		return "text/plain"
	case ".xls":
		return "application/vnd.ms-excel"
	}
	return "application/octet-stream"
}
