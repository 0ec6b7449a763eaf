package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/headline-radar/internal/models"
)

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type bulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Result string `json:"result"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

// bulk sends one _bulk request with the given action ("create" or "index")
// for every document, keyed by document ID. Any failed item fails the call.
func (c *Client) bulk(ctx context.Context, action string, docs []models.Headline) ([]bulkItem, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]bulkMeta{action: {Index: c.index, ID: doc.ID}}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("marshal bulk meta: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("marshal bulk doc: %w", err)
		}
	}

	req := esapi.BulkRequest{
		Index:   c.index,
		Body:    &buf,
		Refresh: "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("bulk %s: %w", action, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("bulk %s failed: %s", action, strings.TrimSpace(string(data)))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}

	items := make([]bulkItem, 0, len(parsed.Items))
	failed := 0
	var first *bulkItem
	for _, wrapped := range parsed.Items {
		item, ok := wrapped[action]
		if !ok {
			continue
		}
		items = append(items, item)
		if item.Error != nil || item.Status >= 300 {
			failed++
			if first == nil {
				first = &item
			}
		}
	}

	c.log.Debug("bulk request done",
		slog.String("action", action),
		slog.Int("docs", len(docs)),
		slog.Int("failed", failed),
	)

	if failed > 0 {
		reason := fmt.Sprintf("status %d", first.Status)
		if first.Error != nil {
			reason = first.Error.Type + ": " + first.Error.Reason
		}
		return items, fmt.Errorf("bulk %s: %d of %d items failed, first %s: %s", action, failed, len(docs), first.ID, reason)
	}

	return items, nil
}

func countResults(items []bulkItem, result string) int {
	n := 0
	for _, item := range items {
		if item.Result == result {
			n++
		}
	}
	return n
}
