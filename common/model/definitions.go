package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// JSONUnmarshal is the single place JSON bodies are decoded.
func JSONUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// ----------------------------------------------------------------------
// Identifiers
// ----------------------------------------------------------------------

// ID is a resource identifier. The platform returns numeric ids for most
// resources but some endpoints quote them, so both forms decode.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes canonical integer ids as numbers and everything else,
// including "007" and "+5", as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// ----------------------------------------------------------------------
// Response envelopes
// ----------------------------------------------------------------------

// Envelope is the platform's standard response wrapper.
type Envelope[T any] struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message,omitempty"`
	Data       T      `json:"data"`
}

// PageMeta describes the position of a page within a paginated listing.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ----------------------------------------------------------------------
// Articles
// ----------------------------------------------------------------------

type Author struct {
	ID       ID     `json:"id"`
	FullName string `json:"fullName"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Name returns the display name, preferring the full name.
func (a Author) Name() string {
	if a.FullName != "" {
		return a.FullName
	}
	return a.Username
}

type Category struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
	Icon string `json:"icon,omitempty"`
}

type Article struct {
	ID           ID         `json:"id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	CoverURL     string     `json:"coverUrl,omitempty"`
	Image        string     `json:"image,omitempty"`
	Status       string     `json:"status,omitempty"`
	Author       *Author    `json:"author,omitempty"`
	Category     *Category  `json:"category,omitempty"`
	LikeCount    int        `json:"likeCount"`
	CommentCount int        `json:"commentCount"`
	Liked        bool       `json:"isLiked,omitempty"`
	Comments     []Comment  `json:"comments,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
}

// Cover returns the cover image, falling back to the legacy image field.
func (a Article) Cover() string {
	if a.CoverURL != "" {
		return a.CoverURL
	}
	return a.Image
}

// Published reports whether the article is visible to other users.
func (a Article) Published() bool {
	return a.Status == "" || a.Status == "published" || a.Status == "PUBLISHED"
}

// ArticlePage is one page of a normalized article listing.
type ArticlePage struct {
	Items []Article `json:"items"`
	Meta  *PageMeta `json:"meta,omitempty"`
}

// Upload is a file attached to a multipart request.
type Upload struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// ArticleInput is the payload for creating or updating an article.
type ArticleInput struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	CategoryID ID      `json:"categoryId,omitempty"`
	Status     string  `json:"status,omitempty"`
	Cover      *Upload `json:"-"`
}

// ListParams filters the public article listing.
type ListParams struct {
	Page       int
	Limit      int
	CategoryID ID
	Search     string
	Sort       string
}

// ----------------------------------------------------------------------
// Comments & likes
// ----------------------------------------------------------------------

type Comment struct {
	ID        ID        `json:"id"`
	ArticleID ID        `json:"articleId"`
	ParentID  ID        `json:"parentId,omitempty"`
	Content   string    `json:"content"`
	Author    *Author   `json:"author,omitempty"`
	LikeCount int       `json:"likeCount"`
	CreatedAt time.Time `json:"createdAt"`
}

type CommentInput struct {
	Content  string `json:"content"`
	ParentID ID     `json:"parentId,omitempty"`
}

// LikeTarget selects what a like toggles; at least one field must be set.
type LikeTarget struct {
	ArticleID ID `json:"articleId,omitempty"`
	CommentID ID `json:"commentId,omitempty"`
}

type LikeState struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
}
