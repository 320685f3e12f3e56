package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"draftsmith/internal/store"
)

const publishedPrefix = "published/"

// PublishedRecord tracks a published item for the staleness sweep and the
// weekly digest.
type PublishedRecord struct {
	ItemID      string    `json:"item_id"`
	PageID      string    `json:"page_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	RefreshedAt time.Time `json:"refreshed_at,omitempty"`
}

func recordKey(itemID string) string {
	return publishedPrefix + itemID
}

func saveRecord(ctx context.Context, st *store.Store, record PublishedRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode published record: %w", err)
	}
	if err := st.Put(ctx, recordKey(record.ItemID), string(encoded), 0); err != nil {
		return fmt.Errorf("persist published record: %w", err)
	}
	return nil
}

func loadRecord(ctx context.Context, st *store.Store, itemID string) (PublishedRecord, bool, error) {
	value, ok, err := st.Get(ctx, recordKey(itemID))
	if err != nil || !ok {
		return PublishedRecord{}, false, err
	}
	var record PublishedRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return PublishedRecord{}, false, fmt.Errorf("decode published record: %w", err)
	}
	return record, true, nil
}

func listRecords(ctx context.Context, st *store.Store) ([]PublishedRecord, error) {
	keys, err := st.List(ctx, publishedPrefix)
	if err != nil {
		return nil, fmt.Errorf("list published records: %w", err)
	}
	records := make([]PublishedRecord, 0, len(keys))
	for _, key := range keys {
		value, ok, err := st.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var record PublishedRecord
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
