// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"super-feynman-go/internal/config"
	"super-feynman-go/internal/model"
	"super-feynman-go/pkg/log"
)

// ConceptIndex 维护概念的全文/向量检索索引。
type ConceptIndex interface {
	IndexConcept(ctx context.Context, doc model.ConceptDocument) error
	DeleteConcept(ctx context.Context, conceptID uint) error
	// DeleteBy 按 lecture_id 或 course_id 等字段批量删除。
	DeleteBy(ctx context.Context, field string, value uint) error
	Search(ctx context.Context, query string, vector []float32, size int) ([]model.ConceptSearchHit, error)
}

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，并确保概念索引存在。dims 为 0 时索引不包含向量字段。
func InitES(esCfg config.ElasticsearchConfig, dims int) (ConceptIndex, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	ESClient = client
	if err := createIndexIfNotExists(client, esCfg.IndexName, dims); err != nil {
		return nil, err
	}
	return NewConceptIndex(client, esCfg.IndexName), nil
}

func indexMapping(dims int) string {
	props := map[string]interface{}{
		"concept_id":          map[string]string{"type": "long"},
		"lecture_id":          map[string]string{"type": "long"},
		"course_id":           map[string]string{"type": "long"},
		"concept_name":        map[string]string{"type": "text"},
		"concept_description": map[string]string{"type": "text"},
	}
	if dims > 0 {
		props["vector"] = map[string]interface{}{
			"type":       "dense_vector",
			"dims":       dims,
			"index":      true,
			"similarity": "cosine",
		}
	}
	b, _ := json.Marshal(map[string]interface{}{"mappings": map[string]interface{}{"properties": props}})
	return string(b)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(indexMapping(dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

type conceptIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewConceptIndex 基于已有客户端创建 ConceptIndex。
func NewConceptIndex(client *elasticsearch.Client, index string) ConceptIndex {
	return &conceptIndex{client: client, index: index}
}

func (c *conceptIndex) do(ctx context.Context, req esapi.Request) ([]byte, error) {
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("elasticsearch returned %s: %s", res.Status(), string(body))
	}
	return body, nil
}

// IndexConcept 写入或覆盖一个概念文档。
func (c *conceptIndex) IndexConcept(ctx context.Context, doc model.ConceptDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, esapi.IndexRequest{
		Index:      c.index,
		DocumentID: strconv.FormatUint(uint64(doc.ConceptID), 10),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	})
	return err
}

func (c *conceptIndex) DeleteConcept(ctx context.Context, conceptID uint) error {
	_, err := c.do(ctx, esapi.DeleteRequest{
		Index:      c.index,
		DocumentID: strconv.FormatUint(uint64(conceptID), 10),
		Refresh:    "true",
	})
	return err
}

func (c *conceptIndex) DeleteBy(ctx context.Context, field string, value uint) error {
	q, _ := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"term": map[string]interface{}{field: value}},
	})
	refresh := true
	_, err := c.do(ctx, esapi.DeleteByQueryRequest{
		Index:   []string{c.index},
		Body:    bytes.NewReader(q),
		Refresh: &refresh,
	})
	return err
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64               `json:"_score"`
			Source model.ConceptDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// buildSearchQuery 构造混合检索语句：有向量时叠加 knn，否则只做 BM25。
func buildSearchQuery(query string, vector []float32, size int) map[string]interface{} {
	q := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"concept_name^2", "concept_description"},
			},
		},
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"size":    size,
	}
	if len(vector) > 0 {
		q["knn"] = map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              size,
			"num_candidates": size * 10,
		}
	}
	return q
}

func (c *conceptIndex) Search(ctx context.Context, query string, vector []float32, size int) ([]model.ConceptSearchHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchQuery(query, vector, size)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}
	body, err := c.do(ctx, esapi.SearchRequest{
		Index: []string{c.index},
		Body:  &buf,
	})
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	hits := make([]model.ConceptSearchHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, model.ConceptSearchHit{
			ConceptID:   h.Source.ConceptID,
			LectureID:   h.Source.LectureID,
			CourseID:    h.Source.CourseID,
			Name:        h.Source.Name,
			Description: h.Source.Description,
			Score:       h.Score,
		})
	}
	return hits, nil
}
