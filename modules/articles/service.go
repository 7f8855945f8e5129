package articles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ixe-agent/articleapi/common"
	"github.com/ixe-agent/articleapi/common/model"
	"github.com/ixe-agent/articleapi/modules/api"
)

var (
	ErrEmptyTitle   = errors.New("articles: title is required")
	ErrEmptyContent = errors.New("articles: content is required")
	ErrEmptyID      = errors.New("articles: id is required")
	ErrNoLikeTarget = errors.New("articles: like needs an article or comment id")
)

// ArticleService exposes the platform's article, comment and like endpoints.
type ArticleService interface {
	ListArticles(ctx context.Context, params model.ListParams) (*model.ArticlePage, error)
	ListAllArticles(ctx context.Context, params model.ListParams, maxPages int) ([]model.Article, error)
	ListMyArticles(ctx context.Context) ([]model.Article, error)
	GetArticle(ctx context.Context, id model.ID) (*model.Article, error)
	CreateArticle(ctx context.Context, in model.ArticleInput) (*model.Article, error)
	UpdateArticle(ctx context.Context, id model.ID, in model.ArticleInput) (*model.Article, error)
	DeleteArticle(ctx context.Context, id model.ID) error
	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateComment(ctx context.Context, articleID model.ID, in model.CommentInput) (*model.Comment, error)
	DeleteComment(ctx context.Context, id model.ID) error
	ToggleLike(ctx context.Context, target model.LikeTarget) (*model.LikeState, error)
}

const (
	DefaultPageSize = 10
	defaultMaxPages = 50

	keyList       = "articles:list:"
	keyMine       = "articles:mine"
	keyItem       = "articles:item:"
	keyCategories = "articles:categories"
)

type articleService struct {
	client api.Client
	cache  common.CacheRepository
	ttl    time.Duration
}

// NewArticleService constructs an ArticleService. A nil cache disables
// response caching; ttl <= 0 uses the cache's default expiration.
func NewArticleService(client api.Client, cache common.CacheRepository, ttl time.Duration) ArticleService {
	return &articleService{
		client: client,
		cache:  cache,
		ttl:    ttl,
	}
}

// BuildListKey composes the cache key of one listing page,
// e.g. "articles:list:categoryId=2:limit=10:page=1:search=go".
func BuildListKey(params model.ListParams) string {
	q := listQuery(params)
	parts := make([]string, 0, len(q))
	for _, k := range []string{"categoryId", "limit", "page", "search", "sort"} {
		if v := q.Get(k); v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	return keyList + strings.Join(parts, ":")
}

func (s *articleService) ListArticles(ctx context.Context, params model.ListParams) (*model.ArticlePage, error) {
	data, err := s.cachedGet(ctx, BuildListKey(params), "articles", listQuery(params))
	if err != nil {
		return nil, err
	}

	items, meta, err := decodeList[model.Article](data)
	if err != nil {
		return nil, err
	}
	return &model.ArticlePage{Items: items, Meta: meta}, nil
}

// ListAllArticles walks pages from params.Page until an empty page, the
// last page reported by the server, or maxPages.
func (s *articleService) ListAllArticles(ctx context.Context, params model.ListParams, maxPages int) ([]model.Article, error) {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if params.Page <= 0 {
		params.Page = 1
	}

	seen := make(map[model.ID]bool)
	all := make([]model.Article, 0)
	for i := 0; i < maxPages; i++ {
		page, err := s.ListArticles(ctx, params)
		if err != nil {
			return all, err
		}
		if len(page.Items) == 0 {
			break
		}
		for _, a := range page.Items {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			all = append(all, a)
		}
		if page.Meta != nil && page.Meta.TotalPages > 0 && params.Page >= page.Meta.TotalPages {
			break
		}
		params.Page++
	}
	return all, nil
}

func (s *articleService) ListMyArticles(ctx context.Context) ([]model.Article, error) {
	data, err := s.cachedGet(ctx, keyMine, "articles/me/all", nil)
	if err != nil {
		return nil, err
	}
	items, _, err := decodeList[model.Article](data)
	return items, err
}

func (s *articleService) GetArticle(ctx context.Context, id model.ID) (*model.Article, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	data, err := s.cachedGet(ctx, keyItem+id.String(), "articles/"+url.PathEscape(id.String()), nil)
	if err != nil {
		return nil, err
	}
	a, err := decodeOne[model.Article](data)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *articleService) CreateArticle(ctx context.Context, in model.ArticleInput) (*model.Article, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrEmptyTitle
	}

	a, err := s.writeArticle(ctx, http.MethodPost, "articles", in)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, a.ID)
	return a, nil
}

func (s *articleService) UpdateArticle(ctx context.Context, id model.ID, in model.ArticleInput) (*model.Article, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrEmptyTitle
	}

	a, err := s.writeArticle(ctx, http.MethodPut, "articles/"+url.PathEscape(id.String()), in)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return a, nil
}

func (s *articleService) DeleteArticle(ctx context.Context, id model.ID) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := s.client.DeleteJSON(ctx, "articles/"+url.PathEscape(id.String()), nil); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *articleService) ListCategories(ctx context.Context) ([]model.Category, error) {
	data, err := s.cachedGet(ctx, keyCategories, "article-categories/all", nil)
	if err != nil {
		return nil, err
	}
	items, _, err := decodeList[model.Category](data)
	return items, err
}

func (s *articleService) CreateComment(ctx context.Context, articleID model.ID, in model.CommentInput) (*model.Comment, error) {
	if articleID == "" {
		return nil, ErrEmptyID
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrEmptyContent
	}

	body := struct {
		ArticleID model.ID `json:"articleId"`
		model.CommentInput
	}{ArticleID: articleID, CommentInput: in}

	var raw []byte
	if err := s.client.PostJSON(ctx, "comments", body, &raw); err != nil {
		return nil, err
	}
	c, err := decodeOne[model.Comment](raw)
	if err != nil {
		return nil, err
	}
	if c.ArticleID == "" {
		c.ArticleID = articleID
	}
	s.invalidate(ctx, articleID)
	return &c, nil
}

func (s *articleService) DeleteComment(ctx context.Context, id model.ID) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := s.client.DeleteJSON(ctx, "comments/"+url.PathEscape(id.String()), nil); err != nil {
		return err
	}
	// The owning article is unknown here.
	s.invalidate(ctx, "")
	return nil
}

func (s *articleService) ToggleLike(ctx context.Context, target model.LikeTarget) (*model.LikeState, error) {
	if target.ArticleID == "" && target.CommentID == "" {
		return nil, ErrNoLikeTarget
	}

	var raw []byte
	if err := s.client.PostJSON(ctx, "likes/toggle", target, &raw); err != nil {
		return nil, err
	}
	st, err := decodeOne[model.LikeState](raw)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, target.ArticleID)
	return &st, nil
}

// writeArticle sends JSON, or a multipart form when a cover is attached.
func (s *articleService) writeArticle(ctx context.Context, method, endpoint string, in model.ArticleInput) (*model.Article, error) {
	var raw []byte
	if in.Cover != nil && in.Cover.Reader != nil {
		body, contentType, err := encodeArticleForm(in)
		if err != nil {
			return nil, err
		}
		if err := s.client.Send(ctx, method, endpoint, contentType, body, &raw); err != nil {
			return nil, err
		}
	} else {
		var err error
		if method == http.MethodPut {
			err = s.client.PutJSON(ctx, endpoint, in, &raw)
		} else {
			err = s.client.PostJSON(ctx, endpoint, in, &raw)
		}
		if err != nil {
			return nil, err
		}
	}

	a, err := decodeOne[model.Article](raw)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// cachedGet returns the raw body for endpoint, serving it from the cache
// when present.
func (s *articleService) cachedGet(ctx context.Context, key, endpoint string, params url.Values) ([]byte, error) {
	if s.cache != nil {
		if data, found := s.cache.Get(key); found {
			common.LoggerFrom(ctx).Debug("cache_hit", slog.String("key", key))
			return data, nil
		}
	}

	data, err := s.client.GetBytes(ctx, endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", endpoint, err)
	}

	if s.cache != nil {
		s.cache.Set(key, data, s.ttl)
	}
	return data, nil
}

// invalidate drops cached listings and the given article. An empty id drops
// every cached article.
func (s *articleService) invalidate(ctx context.Context, id model.ID) {
	if s.cache == nil {
		return
	}
	s.cache.DeletePrefix(keyList)
	s.cache.Delete(keyMine)
	if id == "" {
		s.cache.DeletePrefix(keyItem)
	} else {
		s.cache.Delete(keyItem + id.String())
	}
	common.LoggerFrom(ctx).Debug("cache_invalidated", slog.String("article_id", id.String()))
}

func listQuery(params model.ListParams) url.Values {
	q := url.Values{}
	page := params.Page
	if page <= 0 {
		page = 1
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if params.CategoryID != "" {
		q.Set("categoryId", params.CategoryID.String())
	}
	if params.Search != "" {
		q.Set("search", params.Search)
	}
	if params.Sort != "" {
		q.Set("sort", params.Sort)
	}
	return q
}
