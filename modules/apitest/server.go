// Package apitest runs an in-memory imitation of the article platform API
// for tests. Every route except the refresh endpoint requires the current
// access token.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ixe-agent/articleapi/common/model"
)

const BasePath = "/api/v1"

// Server is a fake platform. Zero or more articles can be seeded with AddArticle.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	access       string
	refresh      string
	generation   int
	refreshFails bool
	rotate       bool

	articles   map[string]*model.Article
	comments   map[string]*model.Comment
	categories []model.Category
	likes      map[string]bool
	nextID     int
	me         model.Author

	refreshCalls atomic.Int64
	calls        atomic.Int64
}

// New starts a server that accepts access and refresh as the initial credentials.
func New(access, refresh string) *Server {
	s := &Server{
		access:   access,
		refresh:  refresh,
		articles: make(map[string]*model.Article),
		comments: make(map[string]*model.Comment),
		likes:    make(map[string]bool),
		nextID:   1,
		me:       model.Author{ID: "7", FullName: "Test Author"},
		categories: []model.Category{
			{ID: "1", Name: "React Native", Icon: "logo-react"},
			{ID: "2", Name: "UI/UX", Icon: "color-palette-outline"},
		},
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// BaseURL is the API root clients should be configured with.
func (s *Server) BaseURL() string { return s.URL + BasePath + "/" }

// Expire invalidates the current access token.
func (s *Server) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
}

// FailRefresh makes the refresh endpoint answer 401.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFails = fail
}

// RotateRefreshTokens makes every refresh also issue a new refresh token.
func (s *Server) RotateRefreshTokens(rotate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotate = rotate
}

// AccessToken is the token the server currently accepts.
func (s *Server) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// Calls counts every request except refreshes.
func (s *Server) Calls() int64 { return s.calls.Load() }

// AddArticle seeds an article and returns its id.
func (s *Server) AddArticle(a model.Article) model.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addArticleLocked(a)
}

func (s *Server) addArticleLocked(a model.Article) model.ID {
	a.ID = model.ID(strconv.Itoa(s.nextID))
	s.nextID++
	if a.Author == nil {
		me := s.me
		a.Author = &me
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	}
	a.UpdatedAt = a.CreatedAt
	s.articles[string(a.ID)] = &a
	return a.ID
}

func (s *Server) Article(id model.ID) (model.Article, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[string(id)]
	if !ok {
		return model.Article{}, false
	}
	return *a, true
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Route(BasePath, func(r chi.Router) {
		r.Post("/auths/refresh-token", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/articles", s.listArticles)
			r.Post("/articles", s.createArticle)
			r.Get("/articles/me/all", s.listMine)
			r.Get("/articles/{id}", s.getArticle)
			r.Put("/articles/{id}", s.updateArticle)
			r.Delete("/articles/{id}", s.deleteArticle)

			r.Get("/article-categories/all", s.listCategories)

			r.Post("/comments", s.createComment)
			r.Delete("/comments/{id}", s.deleteComment)

			r.Post("/likes/toggle", s.toggleLike)
		})
	})
	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)

		s.mu.Lock()
		want := s.access
		s.mu.Unlock()

		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if want == "" || got != want {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"statusCode": 401, "message": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshFails || body.RefreshToken != s.refresh {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"statusCode": 401, "message": "invalid refresh token"})
		return
	}

	s.generation++
	s.access = fmt.Sprintf("access-%d", s.generation)
	data := map[string]any{"accessToken": s.access}
	if s.rotate {
		s.refresh = fmt.Sprintf("refresh-%d", s.generation)
		data["refreshToken"] = s.refresh
	}
	writeJSON(w, http.StatusOK, map[string]any{"statusCode": 200, "data": data})
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	page := atoiDefault(r.URL.Query().Get("page"), 1)
	limit := atoiDefault(r.URL.Query().Get("limit"), 10)
	category := r.URL.Query().Get("categoryId")
	search := strings.ToLower(r.URL.Query().Get("search"))

	s.mu.Lock()
	all := make([]model.Article, 0, len(s.articles))
	for _, a := range s.sortedLocked() {
		if category != "" && (a.Category == nil || string(a.Category.ID) != category) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Title), search) {
			continue
		}
		all = append(all, *a)
	}
	s.mu.Unlock()

	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	totalPages := (len(all) + limit - 1) / limit

	writeJSON(w, http.StatusOK, map[string]any{
		"statusCode": 200,
		"data": map[string]any{
			"items": all[start:end],
			"meta":  model.PageMeta{Page: page, Limit: limit, Total: len(all), TotalPages: totalPages},
		},
	})
}

func (s *Server) listMine(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	mine := make([]model.Article, 0)
	for _, a := range s.sortedLocked() {
		if a.Author != nil && a.Author.ID == s.me.ID {
			mine = append(mine, *a)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"statusCode": 200, "data": mine})
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a, ok := s.articles[chi.URLParam(r, "id")]
	var out model.Article
	if ok {
		out = *a
		for _, c := range s.comments {
			if c.ArticleID == a.ID {
				out.Comments = append(out.Comments, *c)
			}
		}
		sort.Slice(out.Comments, func(i, j int) bool { return idLess(out.Comments[i].ID, out.Comments[j].ID) })
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"statusCode": 404, "message": "Article not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statusCode": 200, "data": out})
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request) {
	in, err := readArticleInput(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	a := model.Article{Title: in.Title, Content: in.Content, CoverURL: in.cover, Status: "published"}
	if in.CategoryID != "" {
		a.Category = s.categoryLocked(in.CategoryID)
	}
	id := s.addArticleLocked(a)
	out := *s.articles[string(id)]
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"statusCode": 201, "data": out})
}

func (s *Server) updateArticle(w http.ResponseWriter, r *http.Request) {
	in, err := readArticleInput(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	a, ok := s.articles[chi.URLParam(r, "id")]
	var out model.Article
	if ok {
		a.Title = in.Title
		a.Content = in.Content
		if in.cover != "" {
			a.CoverURL = in.cover
		}
		if in.CategoryID != "" {
			a.Category = s.categoryLocked(in.CategoryID)
		}
		a.UpdatedAt = a.UpdatedAt.Add(time.Minute)
		out = *a
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"statusCode": 404, "message": "Article not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statusCode": 200, "data": out})
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	_, ok := s.articles[id]
	delete(s.articles, id)
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"statusCode": 404, "message": "Article not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statusCode": 200, "message": "deleted"})
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	cats := append([]model.Category(nil), s.categories...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		model.CommentInput
		ArticleID model.ID `json:"articleId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	a, ok := s.articles[string(in.ArticleID)]
	var out model.Comment
	if ok {
		me := s.me
		out = model.Comment{
			ID:        model.ID(strconv.Itoa(s.nextID)),
			ArticleID: in.ArticleID,
			ParentID:  in.ParentID,
			Content:   in.Content,
			Author:    &me,
			CreatedAt: time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC),
		}
		s.nextID++
		s.comments[string(out.ID)] = &out
		a.CommentCount++
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"statusCode": 404, "message": "Article not found"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"statusCode": 201, "data": out})
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	c, ok := s.comments[id]
	if ok {
		delete(s.comments, id)
		if a, found := s.articles[string(c.ArticleID)]; found {
			a.CommentCount--
		}
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"statusCode": 404, "message": "Comment not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statusCode": 200})
}

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	var in model.LikeTarget
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || (in.ArticleID == "" && in.CommentID == "") {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "articleId or commentId required"})
		return
	}

	s.mu.Lock()
	key := "a:" + string(in.ArticleID)
	if in.CommentID != "" {
		key = "c:" + string(in.CommentID)
	}
	liked := !s.likes[key]
	s.likes[key] = liked

	count := 0
	if in.CommentID == "" {
		if a, ok := s.articles[string(in.ArticleID)]; ok {
			if liked {
				a.LikeCount++
			} else {
				a.LikeCount--
			}
			count = a.LikeCount
		}
	} else if c, ok := s.comments[string(in.CommentID)]; ok {
		if liked {
			c.LikeCount++
		} else {
			c.LikeCount--
		}
		count = c.LikeCount
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"statusCode": 200, "data": model.LikeState{Liked: liked, LikeCount: count}})
}

func (s *Server) sortedLocked() []*model.Article {
	out := make([]*model.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}

func (s *Server) categoryLocked(id model.ID) *model.Category {
	for _, c := range s.categories {
		if c.ID == id {
			cat := c
			return &cat
		}
	}
	return &model.Category{ID: id}
}

type articleInput struct {
	model.ArticleInput
	cover string
}

// readArticleInput accepts JSON or multipart bodies; an uploaded cover is
// reported back as a fake CDN URL containing the file name.
func readArticleInput(r *http.Request) (articleInput, error) {
	var in articleInput

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		err := json.NewDecoder(r.Body).Decode(&in.ArticleInput)
		return in, err
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		return in, err
	}
	in.Title = r.FormValue("title")
	in.Content = r.FormValue("content")
	in.CategoryID = model.ID(r.FormValue("categoryId"))

	f, hdr, err := r.FormFile("cover")
	if err != nil {
		return in, nil
	}
	defer f.Close()
	n, _ := io.Copy(io.Discard, f)
	in.cover = fmt.Sprintf("https://cdn.test/%s?bytes=%d", hdr.Filename, n)
	return in, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func idLess(a, b model.ID) bool {
	ai, _ := strconv.Atoi(string(a))
	bi, _ := strconv.Atoi(string(b))
	return ai < bi
}
