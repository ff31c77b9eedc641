// internal/pipeline/retrieval/elasticsearch.go
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	pipelineerrors "ops-support-assistant/internal/common/errors"
	"ops-support-assistant/internal/models"
)

// ESSourceIndex is a read-only semantic search capability over one knowledge
// source, backed by a single Elasticsearch index (e.g. "ops-kb-runbooks").
type ESSourceIndex struct {
	client *elasticsearch.Client
	index  string
	kind   models.SourceKind
}

func NewESSourceIndex(client *elasticsearch.Client, indexPrefix string, kind models.SourceKind) *ESSourceIndex {
	return &ESSourceIndex{
		client: client,
		index:  fmt.Sprintf("%s-%s", indexPrefix, kind),
		kind:   kind,
	}
}

func (s *ESSourceIndex) Kind() models.SourceKind {
	return s.kind
}

type esHit struct {
	ID     string  `json:"_id"`
	Score  float64 `json:"_score"`
	Source struct {
		DocumentID string `json:"document_id"`
		Text       string `json:"text"`
		Metadata   struct {
			SourceType string `json:"source_type"`
			Service    string `json:"service"`
			Severity   string `json:"severity"`
			OwnerTeam  string `json:"owner_team"`
			Timestamp  string `json:"timestamp"`
		} `json:"metadata"`
	} `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

func (s *ESSourceIndex) Search(ctx context.Context, query string, topK int, filter SearchFilter) ([]models.RetrievedChunk, error) {
	mustClauses := []interface{}{
		map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"text^2", "title"},
			},
		},
	}

	var filterClauses []interface{}
	if filter.Service != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"metadata.service.keyword": filter.Service},
		})
	}
	if filter.Severity != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"metadata.severity.keyword": filter.Severity},
		})
	}
	if !filter.Since.IsZero() {
		filterClauses = append(filterClauses, map[string]interface{}{
			"range": map[string]interface{}{
				"metadata.timestamp": map[string]interface{}{
					"gte": filter.Since.UTC().Format(time.RFC3339),
				},
			},
		})
	}

	boolQuery := map[string]interface{}{"must": mustClauses}
	if len(filterClauses) > 0 {
		boolQuery["filter"] = filterClauses
	}

	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
		"size": topK,
	}

	body, _ := json.Marshal(queryBody)
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(string(body)),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, pipelineerrors.NewSearchTimeout(string(s.kind))
		}
		return nil, pipelineerrors.NewSearchQueryFailed(string(s.kind), err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, pipelineerrors.NewIndexNotFound(s.index)
	}
	if res.IsError() {
		return nil, pipelineerrors.NewSearchQueryFailed(string(s.kind), fmt.Errorf("search failed: %s", res.String()))
	}

	var r esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, pipelineerrors.NewSearchQueryFailed(string(s.kind), err)
	}

	chunks := make([]models.RetrievedChunk, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		docID := hit.Source.DocumentID
		if docID == "" {
			docID = hit.ID
		}
		meta := models.ChunkMetadata{
			SourceType: hit.Source.Metadata.SourceType,
			Service:    hit.Source.Metadata.Service,
			Severity:   hit.Source.Metadata.Severity,
			OwnerTeam:  hit.Source.Metadata.OwnerTeam,
		}
		if meta.SourceType == "" {
			meta.SourceType = string(s.kind)
		}
		if ts, err := time.Parse(time.RFC3339, hit.Source.Metadata.Timestamp); err == nil {
			meta.Timestamp = ts
		}
		chunks = append(chunks, models.RetrievedChunk{
			SourceID:   string(s.kind),
			DocumentID: docID,
			Text:       hit.Source.Text,
			Score:      hit.Score,
			Metadata:   meta,
		})
	}

	return chunks, nil
}
