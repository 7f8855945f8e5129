package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ixe-agent/articleapi/common/model"
)

func TestID_DecodesNumbersAndStrings(t *testing.T) {
	var v struct {
		A model.ID `json:"a"`
		B model.ID `json:"b"`
		C model.ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":42,"b":"abc-1","c":null}`), &v))
	require.Equal(t, model.ID("42"), v.A)
	require.Equal(t, model.ID("abc-1"), v.B)
	require.Empty(t, v.C)

	require.Error(t, json.Unmarshal([]byte(`{"a":true}`), &v))
}

func TestID_Encodes(t *testing.T) {
	out, err := json.Marshal(model.LikeTarget{ArticleID: "12", CommentID: "c-9"})
	require.NoError(t, err)
	require.JSONEq(t, `{"articleId":12,"commentId":"c-9"}`, string(out))

	out, err = json.Marshal(model.LikeTarget{ArticleID: "3"})
	require.NoError(t, err)
	require.JSONEq(t, `{"articleId":3}`, string(out))

	out, err = json.Marshal(model.LikeTarget{ArticleID: "007", CommentID: "+5"})
	require.NoError(t, err)
	require.JSONEq(t, `{"articleId":"007","commentId":"+5"}`, string(out))

	out, err = json.Marshal(model.ArticleInput{Title: "t", CategoryID: "-0"})
	require.NoError(t, err)
	require.JSONEq(t, `{"title":"t","content":"","categoryId":"-0"}`, string(out))

	out, err = json.Marshal(model.ID("-12"))
	require.NoError(t, err)
	require.Equal(t, `-12`, string(out))
}

func TestArticle_CoverAndPublished(t *testing.T) {
	require.Equal(t, "c.png", model.Article{CoverURL: "c.png", Image: "i.png"}.Cover())
	require.Equal(t, "i.png", model.Article{Image: "i.png"}.Cover())
	require.True(t, model.Article{}.Published())
	require.False(t, model.Article{Status: "draft"}.Published())
	require.Equal(t, "neo", model.Author{Username: "neo"}.Name())
}
