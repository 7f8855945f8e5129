package common_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ixe-agent/articleapi/common"
)

func TestNewApiHttpClient(t *testing.T) {
	base := &http.Client{}
	client := common.NewApiHttpClient("MyUserAgent", base, 0)
	if client == nil {
		t.Fatal("expected non-nil HttpClient")
	}
	if base.Timeout != common.DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", common.DefaultTimeout, base.Timeout)
	}
}

func TestHttpClient_Do(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestUserAgent" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "wrong user-agent")
			return
		}
		fmt.Fprint(w, "hello world")
	}))
	defer ts.Close()

	hc := common.NewApiHttpClient("TestUserAgent", &http.Client{}, time.Second)

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "hello world" {
		t.Errorf("unexpected response %d: %s", resp.StatusCode, string(body))
	}
	if req.Header.Get("User-Agent") != "" {
		t.Error("caller's request must not be mutated")
	}
}

func TestHttpClient_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	hc := common.NewApiHttpClient("", &http.Client{}, 20*time.Millisecond)
	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	if _, err := hc.Do(req); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestHTTPError(t *testing.T) {
	err := &common.HTTPError{StatusCode: 404, Method: http.MethodGet, URL: "http://x/articles/1", Body: []byte(`{"message":"Article not found"}`)}
	if !strings.Contains(err.Error(), "GET http://x/articles/1: unexpected status code: 404") {
		t.Errorf("unexpected message: %s", err.Error())
	}

	wrapped := fmt.Errorf("GET articles/1: %w", err)
	if !common.IsStatus(wrapped, http.StatusNotFound) {
		t.Error("expected IsStatus to see through wrapping")
	}
	if common.IsStatus(wrapped, http.StatusUnauthorized) {
		t.Error("expected status mismatch")
	}
	if common.IsStatus(fmt.Errorf("plain"), http.StatusNotFound) {
		t.Error("expected false for non-HTTP errors")
	}
}

func TestOutcome(t *testing.T) {
	cases := map[int]string{
		0:   common.OutcomeTransportError,
		200: common.OutcomeSuccess,
		204: common.OutcomeSuccess,
		401: common.OutcomeClientError,
		404: common.OutcomeNotFound,
		503: common.OutcomeServerError,
	}
	for status, want := range cases {
		if got := common.Outcome(status); got != want {
			t.Errorf("Outcome(%d) = %s, want %s", status, got, want)
		}
	}

	var m *common.Metrics
	m.ObserveRequest(http.MethodGet, 200)
	m.ObserveRefresh(common.RefreshSuccess)
}
