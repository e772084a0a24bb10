package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/empowa-tech/marketplace/internal/domain"
)

const ndjson = "application/x-ndjson"

// SettledActivitySource lists the activities that are ready for cold storage.
type SettledActivitySource interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.SaleActivity, error)
}

// ActivityArchiver implements domain.ActivityArchiver. It exports terminal
// activities as JSONL; deleting them from the primary store is a separate,
// manual step once the object has been checked.
type ActivityArchiver struct {
	writer     domain.BlobWriter
	activities SettledActivitySource
	audit      domain.AuditStore
}

// NewActivityArchiver creates an ActivityArchiver. audit may be nil.
func NewActivityArchiver(writer domain.BlobWriter, activities SettledActivitySource, audit domain.AuditStore) *ActivityArchiver {
	return &ActivityArchiver{writer: writer, activities: activities, audit: audit}
}

// ArchiveActivities uploads every settled activity that expired before the
// cutoff to archive/activities/YYYY-MM-DD.jsonl and returns how many were
// written. Nothing is uploaded when there is nothing to archive.
func (a *ActivityArchiver) ArchiveActivities(ctx context.Context, before time.Time) (int64, error) {
	activities, err := a.activities.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activities query: %w", err)
	}
	if len(activities) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(activities)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activities marshal: %w", err)
	}

	path := ArchivePath("activities", before)
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), ndjson)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activities upload: %w", err)
	}

	count := int64(len(activities))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.activities", map[string]any{
			"path":   path,
			"count":  count,
			"bytes":  len(buf),
			"before": before.UTC().Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive activities audit log: %w", err)
		}
	}
	return count, nil
}

// ArchivePath returns archive/{kind}/YYYY-MM-DD.jsonl for the cutoff day.
func ArchivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format(time.DateOnly))
}

// marshalJSONL encodes items one JSON object per line.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.ActivityArchiver = (*ActivityArchiver)(nil)
