package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxItems = "trellis_items"

// Meili implements Searcher via Meilisearch. All item kinds share one index
// discriminated by the type attribute.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. The client
// starts unhealthy if the initial connection fails; the health loop keeps
// probing so it can recover without a restart.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxItems,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxItems, err)
	}

	index := m.client.Index(idxItems)
	filterable := []interface{}{"projectId", "type", "space"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxItems, err)
	}
	searchable := []string{"title", "description"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxItems, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Index pushes one record.
func (m *Meili) Index(record Record) error {
	if _, err := m.client.Index(idxItems).AddDocuments([]Record{record}, nil); err != nil {
		return fmt.Errorf("index record %s: %w", record.ID, err)
	}
	return nil
}

// IndexAll pushes a batch of records, used on reindex.
func (m *Meili) IndexAll(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := m.client.Index(idxItems).AddDocuments(records, nil); err != nil {
		return fmt.Errorf("index records: %w", err)
	}
	return nil
}

// Delete removes one record from the index.
func (m *Meili) Delete(id string) error {
	if _, err := m.client.Index(idxItems).DeleteDocument(id, nil); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// Search queries the items index scoped to the query's project.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	filters := []string{fmt.Sprintf("projectId = %q", q.ProjectID)}
	if q.FilterType != "" {
		filters = append(filters, fmt.Sprintf("type = %q", string(q.FilterType)))
	}

	resp, err := m.client.Index(idxItems).Search(q.Text, &meili.SearchRequest{
		Limit:  limit,
		Offset: int64(q.Offset),
		Filter: filters,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit interface{}) Result {
	var record Record
	raw, err := json.Marshal(hit)
	if err != nil {
		return Result{}
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return Result{}
	}
	return Result{
		Type:        ResultType(record.Type),
		ID:          record.ID,
		Title:       record.Title,
		Description: record.Description,
		ProjectID:   record.ProjectID,
		Space:       record.Space,
	}
}
