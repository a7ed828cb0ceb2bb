// Package health checks that the backend is reachable.
package health

import (
	"context"
	"fmt"

	"github.com/buddyapp/buddy-client-go/internal/config"
	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/httpclient"
)

const pong = "PONG"

type PingResponse struct {
	Details string `json:"details"`
}

type Client struct {
	http    *httpclient.Client
	baseURL string
}

// New takes the server root URL, not the versioned API base.
func New(httpClient *httpclient.Client, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: baseURL}
}

// Ping calls the unauthenticated liveness endpoint.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	resp, err := httpclient.Get[PingResponse](ctx, c.http, httpclient.JoinURL(c.baseURL, config.HealthPath), nil)
	if err != nil {
		return nil, err
	}
	if resp.Details != pong {
		return &resp, apperrors.External("health", fmt.Errorf("unexpected ping reply %q", resp.Details))
	}
	return &resp, nil
}
