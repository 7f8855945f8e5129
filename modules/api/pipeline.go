package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ixe-agent/articleapi/common"
)

const requestIDHeader = "X-Request-Id"

var errEmptyRefreshResult = errors.New("api: refresh returned no access token")

// RequestStage prepares a request before it is sent.
type RequestStage func(ctx context.Context, req *Request) error

// ResponseStage inspects the outcome of a send and may replace it.
type ResponseStage func(ctx context.Context, req *Request, resp *Response, err error) (*Response, error)

// attachDefaults copies the client's default headers that the request does
// not already set.
func (c *client) attachDefaults(_ context.Context, req *Request) error {
	for k, vs := range c.defaultHeader {
		if _, ok := req.Header[k]; ok {
			continue
		}
		req.Header[k] = append([]string(nil), vs...)
	}
	return nil
}

// attachRequestID tags the logical request once; a replay keeps the id.
func (c *client) attachRequestID(_ context.Context, req *Request) error {
	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, uuid.NewString())
	}
	return nil
}

// attachAuth sets the bearer credential from the current access token.
// Without a token the request goes out unauthenticated.
func (c *client) attachAuth(_ context.Context, req *Request) error {
	token := c.creds.AccessToken()
	req.sentToken = token
	if token == "" {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// handleUnauthorized turns the first 401 of a request into a refresh and a
// replay. Everything else passes through untouched.
func (c *client) handleUnauthorized(ctx context.Context, req *Request, resp *Response, err error) (*Response, error) {
	if err == nil || c.authClient == nil || !common.IsStatus(err, http.StatusUnauthorized) {
		return resp, err
	}

	l := common.LoggerFromOr(ctx, c.log).With(slog.String("request_id", req.Header.Get(requestIDHeader)))
	if req.retried {
		l.Warn("unauthorized_after_refresh")
		return nil, err
	}
	req.retried = true

	token, refreshErr := c.refresh(ctx, req.sentToken)
	if refreshErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &SessionExpiredError{Err: refreshErr}
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return c.Do(ctx, req)
}

// refresh returns an access token newer than stale. Concurrent callers
// share one call to the refresh endpoint; a caller whose token was already
// replaced by someone else's refresh reuses the current one.
func (c *client) refresh(ctx context.Context, stale string) (string, error) {
	if current := c.creds.AccessToken(); current != "" && current != stale {
		c.metrics.ObserveRefresh(common.RefreshJoined)
		return current, nil
	}

	leader := false
	ch := c.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		leader = true
		token, err := c.doRefresh(ctx)
		if err != nil {
			c.notifyExpired(ctx, err)
		}
		return token, err
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if !leader {
			c.metrics.ObserveRefresh(common.RefreshJoined)
		}
		return res.Val.(string), nil
	}
}

// notifyExpired runs once per failed refresh, inside the shared call.
func (c *client) notifyExpired(ctx context.Context, refreshErr error) {
	common.LoggerFromOr(ctx, c.log).Warn("session_expired", slog.String("err", refreshErr.Error()))
	if c.onExpired != nil {
		c.onExpired(context.WithoutCancel(ctx), &SessionExpiredError{Err: refreshErr})
	}
}

func (c *client) doRefresh(ctx context.Context) (string, error) {
	l := common.LoggerFromOr(ctx, c.log)

	rt := c.creds.RefreshToken()
	if rt == "" {
		c.metrics.ObserveRefresh(common.RefreshFailure)
		return "", ErrNoRefreshToken
	}

	rctx := context.WithoutCancel(ctx)
	if c.refreshTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(rctx, c.refreshTimeout)
		defer cancel()
	}

	l.Info("token_refresh_start")
	tok, err := c.authClient.RefreshToken(rctx, rt)
	if err != nil {
		c.metrics.ObserveRefresh(common.RefreshFailure)
		l.Warn("token_refresh_failed", slog.String("err", err.Error()))
		return "", err
	}
	if tok == nil || tok.AccessToken == "" {
		c.metrics.ObserveRefresh(common.RefreshFailure)
		return "", errEmptyRefreshResult
	}

	// The in-memory token is replaced even when persisting it fails.
	if err := c.creds.Update(rctx, tok); err != nil {
		l.Warn("token_persist_failed", slog.String("err", err.Error()))
	}
	c.metrics.ObserveRefresh(common.RefreshSuccess)
	l.Info("token_refresh_done")
	return tok.AccessToken, nil
}
