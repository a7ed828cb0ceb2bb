// Package buddy assembles the client: secret store, session state, request
// pipeline, authorized layer and domain clients, in that order.
package buddy

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/buddyapp/buddy-client-go/internal/auth"
	"github.com/buddyapp/buddy-client-go/internal/authorized"
	"github.com/buddyapp/buddy-client-go/internal/chat"
	"github.com/buddyapp/buddy-client-go/internal/config"
	"github.com/buddyapp/buddy-client-go/internal/events"
	"github.com/buddyapp/buddy-client-go/internal/health"
	"github.com/buddyapp/buddy-client-go/internal/httpclient"
	"github.com/buddyapp/buddy-client-go/internal/secretstore"
	"github.com/buddyapp/buddy-client-go/internal/session"
)

type Client struct {
	Store  secretstore.Store
	State  *session.State
	HTTP   *httpclient.Client
	Layer  *authorized.Layer
	Events *events.Broker

	Auth   *auth.Client
	Chat   *chat.Client
	Health *health.Client

	closeStore func() error
}

type options struct {
	httpOpts  []httpclient.Option
	layerOpts []authorized.Option
	chatOpts  []chat.Option
}

type Option func(*options)

func WithHTTPOptions(opts ...httpclient.Option) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, opts...)
	}
}

func WithLayerOptions(opts ...authorized.Option) Option {
	return func(o *options) {
		o.layerOpts = append(o.layerOpts, opts...)
	}
}

func WithChatOptions(opts ...chat.Option) Option {
	return func(o *options) {
		o.chatOpts = append(o.chatOpts, opts...)
	}
}

// Open builds the secret store from cfg and then the client.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	store, closeStore, err := secretstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := New(cfg, store, opts...)
	c.closeStore = closeStore
	return c, nil
}

// New builds a client over an existing store. The caller owns the store.
func New(cfg *config.Config, store secretstore.Store, opts ...Option) *Client {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	httpOpts := append([]httpclient.Option{httpclient.WithTimeout(cfg.RequestTimeout())}, o.httpOpts...)
	layerOpts := append([]authorized.Option{authorized.WithRefreshWindow(cfg.RefreshWindow())}, o.layerOpts...)

	state := session.New(store, cfg.TokenKey())
	httpClient := httpclient.New(httpOpts...)
	layer := authorized.New(httpClient, state, cfg.APIBaseURL(), layerOpts...)
	broker := events.NewBroker()

	return &Client{
		Store:      store,
		State:      state,
		HTTP:       httpClient,
		Layer:      layer,
		Events:     broker,
		Auth:       auth.New(layer, httpClient, broker),
		Chat:       chat.New(layer, o.chatOpts...),
		Health:     health.New(httpClient, cfg.BaseURL),
		closeStore: func() error { return nil },
	}
}

// Start restores a persisted login, if any.
func (c *Client) Start(ctx context.Context) error {
	if err := c.Auth.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("could not restore session")
		return err
	}
	return nil
}

func (c *Client) Close() error {
	c.Events.Close()
	return c.closeStore()
}
