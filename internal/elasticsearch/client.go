package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"github.com/DeafMist/headline-radar/internal/logger"
	"github.com/DeafMist/headline-radar/internal/models"
)

// ErrNotFound is returned by Get when no headline has the requested id.
var ErrNotFound = errors.New("headline not found")

// ErrResultWindow is returned by Find for an offset page past
// MaxResultWindow that cannot be continued from an earlier page.
var ErrResultWindow = errors.New("offset beyond result window")

// MaxResultWindow is the default index.max_result_window: from+size of a
// search may not exceed it.
const MaxResultWindow = 10_000

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "text":         {"type": "text"},
      "entities":     {"type": "keyword"},
      "entity_types": {"type": "keyword"},
      "sentiment":    {"type": "keyword"}
    }
  }
}`

// Client wraps go-elasticsearch with the headline collection operations.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger

	// last offset page served: the skip that follows it and its final id.
	offsetMu   sync.Mutex
	offsetNext int
	offsetLast string
}

// SearchParams narrow the search endpoint query.
type SearchParams struct {
	Query     string
	Sentiment string
	Entities  []string
	From      int
	Size      int
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64             `json:"total"`
	Items []models.Headline `json:"items"`
}

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Client{es: es, index: index, log: logger.OrDiscard(log)}, nil
}

// Close releases idle connections held by the transport.
func (c *Client) Close() error {
	if t, ok := c.es.Transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// EnsureIndex creates the headline index with keyword mappings when missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		if strings.Contains(string(data), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(data)))
	}

	c.log.Info("index created", slog.String("index", c.index))
	return nil
}

// Refresh makes recently written documents visible to searches.
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("refresh index failed: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// InsertMany stores every document as a new record in one bulk request.
// Each record gets a fresh UUID; any caller-provided ID is ignored.
// It returns the number of records created.
func (c *Client) InsertMany(ctx context.Context, docs []models.Headline) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	batch := make([]models.Headline, len(docs))
	for i, doc := range docs {
		doc.ID = uuid.NewString()
		batch[i] = doc
	}

	items, err := c.bulk(ctx, "create", batch)
	if err != nil {
		return 0, err
	}
	return countResults(items, "created"), nil
}

// UpdateMany replaces each document by id in one bulk request and returns
// how many of them already existed.
func (c *Client) UpdateMany(ctx context.Context, docs []models.Headline) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	for _, doc := range docs {
		if doc.ID == "" {
			return 0, errors.New("update headline: empty id")
		}
	}

	items, err := c.bulk(ctx, "index", docs)
	if err != nil {
		return 0, err
	}
	return countResults(items, "updated"), nil
}

// Find returns one page of headlines ordered by id. A non-empty After uses
// search_after. Otherwise Skip is an offset: it is sent as from while the
// page fits MaxResultWindow. Past it, a skip that starts right where the
// previous offset page ended continues from that page's last id.
func (c *Client) Find(ctx context.Context, page models.PageRequest) ([]models.Headline, error) {
	if page.Limit <= 0 {
		return nil, fmt.Errorf("find headlines: limit must be positive")
	}

	body := map[string]any{
		"size":             page.Limit,
		"track_total_hits": false,
		"query": map[string]any{
			"match_all": map[string]any{},
		},
		"sort": []map[string]any{
			{"id": map[string]any{"order": "asc"}},
		},
	}

	offset := page.After == ""
	switch {
	case !offset:
		body["search_after"] = []string{page.After}
	case page.Skip > 0:
		if page.Skip+page.Limit <= MaxResultWindow {
			body["from"] = page.Skip
		} else if after, ok := c.offsetAfter(page.Skip); ok {
			body["search_after"] = []string{after}
		} else {
			return nil, fmt.Errorf("find headlines: skip %d: %w", page.Skip, ErrResultWindow)
		}
	}

	result, err := c.search(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("find headlines: %w", err)
	}
	if offset && len(result.Items) > 0 {
		c.offsetMu.Lock()
		c.offsetNext = page.Skip + len(result.Items)
		c.offsetLast = result.Items[len(result.Items)-1].ID
		c.offsetMu.Unlock()
	}
	return result.Items, nil
}

func (c *Client) offsetAfter(skip int) (string, bool) {
	c.offsetMu.Lock()
	defer c.offsetMu.Unlock()
	if c.offsetLast == "" || c.offsetNext != skip {
		return "", false
	}
	return c.offsetLast, true
}

// Get fetches a single headline by id.
func (c *Client) Get(ctx context.Context, id string) (models.Headline, error) {
	req := esapi.GetRequest{
		Index:      c.index,
		DocumentID: id,
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return models.Headline{}, fmt.Errorf("get headline: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return models.Headline{}, ErrNotFound
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return models.Headline{}, fmt.Errorf("get headline failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Found  bool            `json:"found"`
		Source models.Headline `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return models.Headline{}, fmt.Errorf("decode get response: %w", err)
	}
	if !parsed.Found {
		return models.Headline{}, ErrNotFound
	}
	return parsed.Source, nil
}

// Search executes a bool query with optional filters.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 2)

	if params.Query != "" {
		must = append(must, map[string]any{
			"match": map[string]any{
				"text": params.Query,
			},
		})
	}

	if params.Sentiment != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{
				"sentiment": params.Sentiment,
			},
		})
	}

	if len(params.Entities) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{
				"entities": params.Entities,
			},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query": map[string]any{
			"bool": boolQuery,
		},
	}

	// Relevance order for text queries, stable id order otherwise.
	if params.Query == "" {
		body["sort"] = []map[string]any{
			{"id": map[string]any{"order": "asc"}},
		}
	}

	return c.search(ctx, body)
}

func (c *Client) search(ctx context.Context, body map[string]any) (*SearchResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Headline `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.Headline, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}
