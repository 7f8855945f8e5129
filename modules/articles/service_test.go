package articles_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ixe-agent/articleapi/common"
	"github.com/ixe-agent/articleapi/common/model"
	"github.com/ixe-agent/articleapi/modules/api"
	"github.com/ixe-agent/articleapi/modules/apitest"
	"github.com/ixe-agent/articleapi/modules/articles"
	"github.com/ixe-agent/articleapi/modules/auth"
	"github.com/ixe-agent/articleapi/modules/session"
)

type fixture struct {
	srv   *apitest.Server
	sess  *session.Session
	cache common.CacheRepository
	svc   articles.ArticleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := apitest.New("initial", "refresh")
	t.Cleanup(srv.Close)

	sess := session.New(nil)
	require.NoError(t, sess.Login(context.Background(), &oauth2.Token{AccessToken: "initial", RefreshToken: "refresh"}))

	hc := common.NewApiHttpClient("articleapi-test", &http.Client{}, 5*time.Second)
	ac, err := auth.NewAuthClient(srv.BaseURL(), "", hc)
	require.NoError(t, err)
	client, err := api.NewClient(srv.BaseURL(), hc, sess, ac)
	require.NoError(t, err)

	cache := common.NewCacheStore(time.Minute, time.Minute)
	return &fixture{
		srv:   srv,
		sess:  sess,
		cache: cache,
		svc:   articles.NewArticleService(client, cache, 0),
	}
}

// rawService serves body for every request.
func rawService(t *testing.T, body string) articles.ArticleService {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	client, err := api.NewClient(ts.URL, common.NewApiHttpClient("t", &http.Client{}, time.Second), session.New(nil), nil)
	require.NoError(t, err)
	return articles.NewArticleService(client, nil, 0)
}

func TestListArticles_Paginated(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.srv.AddArticle(model.Article{Title: "post"})
	}

	page, err := f.svc.ListArticles(context.Background(), model.ListParams{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotNil(t, page.Meta)
	require.Equal(t, 3, page.Meta.Total)
	require.Equal(t, 2, page.Meta.TotalPages)
}

func TestListArticles_Shapes(t *testing.T) {
	cases := map[string]struct {
		body string
		want []model.ID
	}{
		"bare array":       {`[{"id":1,"title":"a"},{"id":"2","title":"b"}]`, []model.ID{"1", "2"}},
		"data array":       {`{"data":[{"id":3}]}`, []model.ID{"3"}},
		"items array":      {`{"items":[{"id":4}],"meta":{"page":1}}`, []model.ID{"4"}},
		"data items":       {`{"statusCode":200,"data":{"items":[{"id":5},{"id":6}],"meta":{"totalPages":1}}}`, []model.ID{"5", "6"}},
		"unexpected shape": {`{"data":"nope"}`, nil},
		"empty object":     {`{}`, nil},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			page, err := rawService(t, tc.body).ListArticles(context.Background(), model.ListParams{})
			require.NoError(t, err)
			require.NotNil(t, page.Items)

			var ids []model.ID
			for _, a := range page.Items {
				ids = append(ids, a.ID)
			}
			require.Equal(t, tc.want, ids)
		})
	}
}

func TestGetArticle_BareAndWrapped(t *testing.T) {
	a, err := rawService(t, `{"id":9,"title":"bare","image":"legacy.png"}`).GetArticle(context.Background(), "9")
	require.NoError(t, err)
	require.Equal(t, model.ID("9"), a.ID)
	require.Equal(t, "legacy.png", a.Cover())

	a, err = rawService(t, `{"statusCode":200,"data":{"id":"10","title":"wrapped","coverUrl":"c.png","image":"i.png"}}`).
		GetArticle(context.Background(), "10")
	require.NoError(t, err)
	require.Equal(t, "wrapped", a.Title)
	require.Equal(t, "c.png", a.Cover())
}

func TestListAllArticles_StopsAtLastPage(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.srv.AddArticle(model.Article{Title: "post"})
	}

	all, err := f.svc.ListAllArticles(context.Background(), model.ListParams{Limit: 2}, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.EqualValues(t, 3, f.srv.Calls())
}

func TestListAllArticles_RespectsMaxPages(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.srv.AddArticle(model.Article{Title: "post"})
	}

	all, err := f.svc.ListAllArticles(context.Background(), model.ListParams{Limit: 1}, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestGetArticle_CachedUntilMutation(t *testing.T) {
	f := newFixture(t)
	id := f.srv.AddArticle(model.Article{Title: "first"})
	ctx := context.Background()

	a, err := f.svc.GetArticle(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "first", a.Title)

	_, err = f.svc.GetArticle(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.srv.Calls())

	_, err = f.svc.UpdateArticle(ctx, id, model.ArticleInput{Title: "second", Content: "body"})
	require.NoError(t, err)

	a, err = f.svc.GetArticle(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "second", a.Title)
	require.EqualValues(t, 3, f.srv.Calls())
}

func TestCreateArticle_InvalidatesLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, err := f.svc.ListMyArticles(ctx)
	require.NoError(t, err)
	require.Empty(t, mine)

	page, err := f.svc.ListArticles(ctx, model.ListParams{})
	require.NoError(t, err)
	require.Empty(t, page.Items)

	created, err := f.svc.CreateArticle(ctx, model.ArticleInput{Title: "New", Content: "text", CategoryID: "2"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "UI/UX", created.Category.Name)

	mine, err = f.svc.ListMyArticles(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	page, err = f.svc.ListArticles(ctx, model.ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestCreateArticle_MultipartCover(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateArticle(context.Background(), model.ArticleInput{
		Title:      "With cover",
		Content:    "text",
		CategoryID: "1",
		Cover:      &model.Upload{Name: "/tmp/photo.png", ContentType: "image/png", Reader: strings.NewReader("png-bytes")},
	})
	require.NoError(t, err)
	require.Equal(t, "With cover", created.Title)
	require.Equal(t, "https://cdn.test/photo.png?bytes=9", created.Cover())
	require.Equal(t, "React Native", created.Category.Name)
}

func TestCreateArticle_MultipartReplayedAfterRefresh(t *testing.T) {
	f := newFixture(t)
	f.srv.Expire()

	created, err := f.svc.CreateArticle(context.Background(), model.ArticleInput{
		Title: "Replayed",
		Cover: &model.Upload{Name: "a.jpg", Reader: strings.NewReader("abc")},
	})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/a.jpg?bytes=3", created.Cover())
	require.EqualValues(t, 1, f.srv.RefreshCalls())
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateArticle(ctx, model.ArticleInput{Title: "  "})
	require.ErrorIs(t, err, articles.ErrEmptyTitle)

	_, err = f.svc.UpdateArticle(ctx, "", model.ArticleInput{Title: "x"})
	require.ErrorIs(t, err, articles.ErrEmptyID)

	_, err = f.svc.GetArticle(ctx, "")
	require.ErrorIs(t, err, articles.ErrEmptyID)

	require.ErrorIs(t, f.svc.DeleteArticle(ctx, ""), articles.ErrEmptyID)
	require.ErrorIs(t, f.svc.DeleteComment(ctx, ""), articles.ErrEmptyID)

	_, err = f.svc.CreateComment(ctx, "1", model.CommentInput{Content: ""})
	require.ErrorIs(t, err, articles.ErrEmptyContent)

	_, err = f.svc.ToggleLike(ctx, model.LikeTarget{})
	require.ErrorIs(t, err, articles.ErrNoLikeTarget)

	require.Zero(t, f.srv.Calls())
}

func TestDeleteArticle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.srv.AddArticle(model.Article{Title: "gone"})

	_, err := f.svc.GetArticle(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteArticle(ctx, id))
	_, ok := f.srv.Article(id)
	require.False(t, ok)

	_, err = f.svc.GetArticle(ctx, id)
	require.True(t, common.IsStatus(err, http.StatusNotFound))
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.srv.AddArticle(model.Article{Title: "discussed"})

	_, err := f.svc.GetArticle(ctx, id)
	require.NoError(t, err)

	c, err := f.svc.CreateComment(ctx, id, model.CommentInput{Content: "nice"})
	require.NoError(t, err)
	require.Equal(t, id, c.ArticleID)
	require.Equal(t, "Test Author", c.Author.Name())

	a, err := f.svc.GetArticle(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, a.CommentCount)
	require.Len(t, a.Comments, 1)

	require.NoError(t, f.svc.DeleteComment(ctx, c.ID))

	a, err = f.svc.GetArticle(ctx, id)
	require.NoError(t, err)
	require.Zero(t, a.CommentCount)
	require.Empty(t, a.Comments)
}

func TestToggleLike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.srv.AddArticle(model.Article{Title: "liked"})

	st, err := f.svc.ToggleLike(ctx, model.LikeTarget{ArticleID: id})
	require.NoError(t, err)
	require.True(t, st.Liked)
	require.Equal(t, 1, st.LikeCount)

	st, err = f.svc.ToggleLike(ctx, model.LikeTarget{ArticleID: id})
	require.NoError(t, err)
	require.False(t, st.Liked)
	require.Zero(t, st.LikeCount)
}

func TestListCategories_BareArray(t *testing.T) {
	f := newFixture(t)

	cats, err := f.svc.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 2)
	require.Equal(t, model.ID("1"), cats[0].ID)
	require.Equal(t, "logo-react", cats[0].Icon)
}

func TestExpiredSessionSurfacesThroughService(t *testing.T) {
	f := newFixture(t)
	f.srv.Expire()
	f.srv.FailRefresh(true)

	_, err := f.svc.ListMyArticles(context.Background())
	require.ErrorIs(t, err, api.ErrSessionExpired)
}

func TestBuildListKey(t *testing.T) {
	require.Equal(t, "articles:list:limit=10:page=1", articles.BuildListKey(model.ListParams{}))
	require.Equal(t,
		"articles:list:categoryId=2:limit=5:page=3:search=go",
		articles.BuildListKey(model.ListParams{Page: 3, Limit: 5, CategoryID: "2", Search: "go"}))
}
