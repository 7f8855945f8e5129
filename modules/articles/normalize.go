package articles

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ixe-agent/articleapi/common/model"
)

// listShape covers the object forms a listing can take.
type listShape struct {
	Data  json.RawMessage `json:"data"`
	Items json.RawMessage `json:"items"`
	Meta  *model.PageMeta `json:"meta"`
}

// decodeList accepts a bare array, {data:[...]}, {items:[...]} or
// {data:{items:[...], meta}}. Any other shape yields an empty list.
func decodeList[T any](data []byte) ([]T, *model.PageMeta, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []T{}, nil, nil
	}

	switch data[0] {
	case '[':
		var out []T
		if err := model.JSONUnmarshal(data, &out); err != nil {
			return nil, nil, fmt.Errorf("failed to decode list: %w", err)
		}
		return nonNil(out), nil, nil
	case '{':
		var shape listShape
		if err := model.JSONUnmarshal(data, &shape); err != nil {
			return nil, nil, fmt.Errorf("failed to decode list: %w", err)
		}
		if d := bytes.TrimSpace(shape.Data); len(d) > 0 && (d[0] == '[' || d[0] == '{') {
			items, meta, err := decodeList[T](d)
			if err != nil {
				return nil, nil, err
			}
			if meta == nil {
				meta = shape.Meta
			}
			return items, meta, nil
		}
		if it := bytes.TrimSpace(shape.Items); len(it) > 0 && it[0] == '[' {
			items, _, err := decodeList[T](it)
			return items, shape.Meta, err
		}
	}
	return []T{}, nil, nil
}

// decodeOne accepts {data:{...}} or the bare object.
func decodeOne[T any](data []byte) (T, error) {
	var out T

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	body := bytes.TrimSpace(data)
	if len(body) > 0 && body[0] == '{' {
		if err := model.JSONUnmarshal(body, &env); err == nil {
			if d := bytes.TrimSpace(env.Data); len(d) > 0 && d[0] == '{' {
				body = d
			}
		}
	}

	if err := model.JSONUnmarshal(body, &out); err != nil {
		return out, fmt.Errorf("failed to decode item: %w", err)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
