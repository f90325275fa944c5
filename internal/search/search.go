// Package search mirrors transactions into an Elasticsearch index.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finease/internal/core"
	"finease/internal/log"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

const (
	DefaultIndex = "finease-transactions"
	bulkFlush    = 2048
)

const mapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "email":        {"type": "keyword"},
      "type":         {"type": "keyword"},
      "category":     {"type": "keyword"},
      "amount":       {"type": "scaled_float", "scaling_factor": 100},
      "amount_cents": {"type": "long"},
      "date":         {"type": "date"},
      "month":        {"type": "keyword"},
      "description":  {"type": "text"},
      "name":         {"type": "text"},
      "createdAt":    {"type": "date"},
      "updatedAt":    {"type": "date"}
    }
  }
}`

// Document is the indexed form of a transaction. The ID lives in the
// document metadata and is repeated as a keyword field for queries.
type Document struct {
	ID          string    `json:"id"`
	Owner       string    `json:"email"`
	Type        string    `json:"type"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
	AmountCents int64     `json:"amount_cents"`
	Date        time.Time `json:"date"`
	Month       string    `json:"month"`
	Description string    `json:"description,omitempty"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewDocument(tx core.Transaction) Document {
	amount, _ := tx.Amount.Decimal().Float64()
	return Document{
		ID:          tx.ID,
		Owner:       tx.Owner,
		Type:        tx.Type.String(),
		Category:    tx.Category,
		Amount:      amount,
		AmountCents: tx.Amount.Cents,
		Date:        tx.Date.UTC(),
		Month:       core.MonthBucket(tx.Date),
		Description: tx.Description,
		Name:        tx.Name,
		CreatedAt:   tx.CreatedAt.UTC(),
		UpdatedAt:   tx.UpdatedAt.UTC(),
	}
}

type Index struct {
	es    *elasticsearch.Client
	index string
}

// New builds a client for addresses that retries throttling and gateway
// errors with exponential backoff.
func New(addresses []string, index string) (*Index, error) {
	if index == "" {
		index = DefaultIndex
	}

	retryBackoff := backoff.NewExponentialBackOff()
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     addresses,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			if i == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},
		MaxRetries: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Index{es: es, index: index}, nil
}

func (i *Index) Name() string { return i.index }

// EnsureIndex creates the index with its mapping. An existing index is
// left as is.
func (i *Index) EnsureIndex(ctx context.Context) error {
	res, err := i.es.Indices.Create(i.index,
		i.es.Indices.Create.WithBody(strings.NewReader(mapping)),
		i.es.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("create index %s: %w", i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if res.StatusCode == http.StatusBadRequest && bytes.Contains(body, []byte("resource_already_exists_exception")) {
			return nil
		}
		return fmt.Errorf("create index %s: %s: %s", i.index, res.Status(), body)
	}
	return nil
}

// Upsert writes the document for tx, replacing any previous version.
func (i *Index) Upsert(ctx context.Context, tx core.Transaction) error {
	body, err := json.Marshal(NewDocument(tx))
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	res, err := i.es.Index(i.index, bytes.NewReader(body),
		i.es.Index.WithDocumentID(tx.ID),
		i.es.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index transaction %s: %w", tx.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("index transaction "+tx.ID, res)
	}
	return nil
}

// Delete removes the document for id. A missing document is not an error.
func (i *Index) Delete(ctx context.Context, id string) error {
	res, err := i.es.Delete(i.index, id, i.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete transaction "+id, res)
	}
	return nil
}

// BulkIndex indexes txs and returns how many documents were flushed.
func (i *Index) BulkIndex(ctx context.Context, txs []core.Transaction) (int, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentSearch)

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         i.index,
		Client:        i.es,
		NumWorkers:    4,
		FlushBytes:    bulkFlush,
		FlushInterval: 10 * time.Second,
	})
	if err != nil {
		return 0, fmt.Errorf("create bulk indexer: %w", err)
	}
	// abort stops the indexer's workers and flush ticker before an early return.
	abort := func(err error) (int, error) {
		if cerr := bi.Close(ctx); cerr != nil {
			logger.WarnContext(ctx, "Failed to close bulk indexer", "error", cerr)
		}
		return 0, err
	}

	for _, tx := range txs {
		data, err := json.Marshal(NewDocument(tx))
		if err != nil {
			return abort(fmt.Errorf("marshal document %s: %w", tx.ID, err))
		}

		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: tx.ID,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					logger.ErrorContext(ctx, "Failed to index transaction", log.FieldTransactionID, item.DocumentID, "error", err)
					return
				}
				logger.ErrorContext(ctx, "Failed to index transaction",
					log.FieldTransactionID, item.DocumentID,
					"error_type", res.Error.Type,
					"reason", res.Error.Reason)
			},
		})
		if err != nil {
			return abort(fmt.Errorf("queue document %s: %w", tx.ID, err))
		}
	}

	if err := bi.Close(ctx); err != nil {
		return 0, fmt.Errorf("flush bulk indexer: %w", err)
	}

	stats := bi.Stats()
	if stats.NumFailed > 0 {
		return int(stats.NumFlushed), fmt.Errorf("failed indexing %d of %d documents", stats.NumFailed, len(txs))
	}
	return int(stats.NumFlushed), nil
}

func (i *Index) Ping(ctx context.Context) error {
	res, err := i.es.Info(i.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("elasticsearch info", res)
	}
	return nil
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(res.Body)
	return fmt.Errorf("%s: %s: %s", op, res.Status(), bytes.TrimSpace(body))
}
