package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"go.uber.org/zap"
)

const linkIndexName = "links"

// linkDocument 是写入 Elasticsearch 的链接文档结构
type linkDocument struct {
	ID          uint64 `json:"id"`
	CreatedBy   uint64 `json:"created_by"`
	CustomName  string `json:"custom_name"`
	Description string `json:"description"`
}

// LinkIndexer 维护链接的全文索引，供列表接口的模糊搜索使用。
// 索引是旁路设施：写入失败只记日志，不影响主流程。
type LinkIndexer interface {
	IndexLink(ctx context.Context, link *models.Link) error
	DeleteLink(ctx context.Context, id uint64) error
	SearchLinks(ctx context.Context, ownerID uint64, keyword string, limit int) ([]uint64, error)
}

type esLinkIndexer struct {
	client *elasticsearch.Client
}

var _ LinkIndexer = (*esLinkIndexer)(nil)

// NewESLinkIndexer 创建基于 Elasticsearch 的 LinkIndexer 实例
func NewESLinkIndexer(client *elasticsearch.Client) LinkIndexer {
	return &esLinkIndexer{client: client}
}

func (s *esLinkIndexer) IndexLink(ctx context.Context, link *models.Link) error {
	doc := linkDocument{
		ID:          link.ID,
		CreatedBy:   link.CreatedBy,
		CustomName:  link.CustomName,
		Description: link.Description,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化链接文档失败: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      linkIndexName,
		DocumentID: strconv.FormatUint(link.ID, 10),
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("索引链接文档失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("索引链接文档返回错误: %s", res.Status())
	}
	return nil
}

func (s *esLinkIndexer) DeleteLink(ctx context.Context, id uint64) error {
	req := esapi.DeleteRequest{
		Index:      linkIndexName,
		DocumentID: strconv.FormatUint(id, 10),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("删除链接文档失败: %w", err)
	}
	defer res.Body.Close()

	// 文档不存在视为已删除
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("删除链接文档返回错误: %s", res.Status())
	}
	return nil
}

// SearchLinks 在当前用户的链接中按名称与描述做模糊搜索，返回命中的主键集合
func (s *esLinkIndexer) SearchLinks(ctx context.Context, ownerID uint64, keyword string, limit int) ([]uint64, error) {
	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"created_by": ownerID}},
				},
				"must": []map[string]any{
					{"multi_match": map[string]any{
						"query":  keyword,
						"fields": []string{"custom_name^2", "description"},
						"type":   "phrase_prefix",
					}},
				},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("构造搜索请求失败: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(linkIndexName),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("搜索链接失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("搜索链接返回错误: %s", res.Status())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source linkDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析搜索响应失败: %w", err)
	}

	ids := make([]uint64, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		ids = append(ids, hit.Source.ID)
	}
	logger.Debug("链接搜索完成",
		zap.Uint64("ownerID", ownerID),
		zap.String("keyword", keyword),
		zap.Int("hits", len(ids)))
	return ids, nil
}
