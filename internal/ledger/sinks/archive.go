package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/click-redirector/internal/hash/sha256"
	"github.com/JakeFAU/click-redirector/internal/ledger"
)

const ndjsonContentType = "application/x-ndjson"

// BlobStore persists archive objects.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher names archive objects by content digest.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// ArchiveSink writes each batch's clicks as one newline-delimited JSON object
// under {prefix}/dt=YYYY-MM-DD/{digest}.ndjson. Count operations are ignored.
type ArchiveSink struct {
	blobs  BlobStore
	prefix string
	hasher Hasher
	now    func() time.Time
}

// NewArchiveSink constructs an ArchiveSink over blobs.
func NewArchiveSink(blobs BlobStore, prefix string) *ArchiveSink {
	return &ArchiveSink{
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		hasher: sha256.New(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Consume encodes the batch and uploads it.
func (s *ArchiveSink) Consume(ctx context.Context, batch []ledger.Event) error {
	if s == nil || s.blobs == nil {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, evt := range batch {
		if evt.Kind != ledger.KindClick {
			continue
		}
		if err := enc.Encode(newClickRecord(evt.Click)); err != nil {
			return fmt.Errorf("encode click record: %w", err)
		}
	}
	if buf.Len() == 0 {
		return nil
	}
	digest, err := s.hasher.Hash(buf.Bytes())
	if err != nil {
		return fmt.Errorf("hash archive batch: %w", err)
	}
	objectPath := path.Join(s.prefix, "dt="+s.now().Format(time.DateOnly), digest+".ndjson")
	if _, err := s.blobs.PutObject(ctx, objectPath, ndjsonContentType, &buf); err != nil {
		return fmt.Errorf("put archive object %s: %w", objectPath, err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
