// Package httpclient issues JSON requests and classifies responses into the
// AppError taxonomy. It knows nothing about authentication.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/buddyapp/buddy-client-go/internal/config"
	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
)

// maxResponseBody caps how much of a response body is read.
const maxResponseBody = 4 << 20

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	// JSON is encoded as the request body when set.
	JSON any
	// Form is sent url-encoded when set and JSON is nil.
	Form url.Values
}

type Client struct {
	doer Doer
}

type Option func(*Client)

func WithDoer(doer Doer) Option {
	return func(c *Client) {
		c.doer = doer
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.doer = &http.Client{Timeout: timeout}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		doer: &http.Client{Timeout: config.DefaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs req and decodes a successful body into out. A nil out skips decoding.
// Every failure is an *apperrors.AppError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.doer.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn().
			Err(err).
			Str("method", req.Method).
			Str("url", req.URL).
			Dur("elapsed", elapsed).
			Msg("request failed without response")
		return apperrors.Transport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return apperrors.Transport(err)
	}

	log.Debug().
		Str("method", req.Method).
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("request completed")

	if err := classify(resp.StatusCode, body); err != nil {
		if err.Code == apperrors.ErrCodeClientError {
			log.Error().
				Str("method", req.Method).
				Str("url", req.URL).
				Int("status", resp.StatusCode).
				Bytes("payload", body).
				Msg("undocumented response")
		}
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Error().
			Err(err).
			Str("url", req.URL).
			Bytes("payload", body).
			Msg("failed to decode response")
		return apperrors.Decoding(body, err).WithResponse(resp.StatusCode, body)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to encode request body", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to build request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// classify maps a status code onto the error taxonomy; nil means success.
func classify(status int, body []byte) *apperrors.AppError {
	switch {
	case status < 300:
		return nil
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.BadRequest(status, body)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperrors.UnauthorizedResponse(status, body)
	case status == http.StatusNotFound:
		return apperrors.NotFoundResponse(body)
	default:
		return apperrors.ClientError(status, body)
	}
}

// Get performs a GET and decodes the body into T.
func Get[T any](ctx context.Context, c *Client, url string, headers map[string]string) (T, error) {
	var out T
	err := c.Do(ctx, Request{Method: http.MethodGet, URL: url, Headers: headers}, &out)
	return out, err
}

// Post performs a JSON POST and decodes the body into T.
func Post[T any](ctx context.Context, c *Client, url string, payload any, headers map[string]string) (T, error) {
	var out T
	err := c.Do(ctx, Request{Method: http.MethodPost, URL: url, JSON: payload, Headers: headers}, &out)
	return out, err
}

// PostForm performs a url-encoded POST and decodes the body into T.
func PostForm[T any](ctx context.Context, c *Client, url string, form url.Values) (T, error) {
	var out T
	err := c.Do(ctx, Request{Method: http.MethodPost, URL: url, Form: form}, &out)
	return out, err
}

// JoinURL appends path segments to base with single slashes.
func JoinURL(base string, segments ...string) string {
	out := strings.TrimRight(base, "/")
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}
		out += "/" + s
	}
	return out
}
