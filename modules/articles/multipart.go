package articles

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"path/filepath"

	"github.com/ixe-agent/articleapi/common/model"
)

const coverField = "cover"

// encodeArticleForm builds the multipart body used when an article carries
// a cover image. The whole form is buffered so a replay can resend it.
func encodeArticleForm(in model.ArticleInput) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"title", in.Title},
		{"content", in.Content},
		{"categoryId", in.CategoryID.String()},
		{"status", in.Status},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	name := filepath.Base(in.Cover.Name)
	if name == "." || name == "/" {
		name = "cover.jpg"
	}
	contentType := in.Cover.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, coverField, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create cover part: %w", err)
	}
	if _, err := io.Copy(part, in.Cover.Reader); err != nil {
		return nil, "", fmt.Errorf("failed to read cover: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
