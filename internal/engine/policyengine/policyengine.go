package policyengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/3cpo-dev/saltamt/internal/engine"
	"github.com/3cpo-dev/saltamt/internal/telemetry"
)

// Client calls a PolicyEngine API deployment.
type Client struct {
	name    string
	base    string
	country string
	token   string
	http    *engine.RetryableHTTPClient
}

func New(ep engine.Endpoint, httpc *engine.RetryableHTTPClient) *Client {
	country := ep.Country
	if country == "" {
		country = "us"
	}
	return &Client{
		name:    ep.Name,
		base:    strings.TrimRight(ep.URL, "/"),
		country: country,
		token:   ep.Token,
		http:    httpc,
	}
}

func (c *Client) Name() string { return c.name }

// NewRegistry registers one client per configured endpoint.
func NewRegistry(cfg engine.Config) (*engine.Registry, error) {
	cfg.ApplyDefaults()
	httpc := engine.NewRetryableHTTPClient(cfg.Timeout(), cfg.Engine.RequestsPerSecond, cfg.RetryConfig())
	reg := engine.NewRegistry()
	for _, ep := range cfg.Engine.Endpoints {
		if ep.Name == "" || ep.URL == "" {
			return nil, fmt.Errorf("engine endpoint needs a name and url")
		}
		reg.Register(New(ep, httpc))
	}
	if err := reg.SetDefault(cfg.Engine.Default); err != nil {
		return nil, err
	}
	return reg, nil
}

// Calculate posts the situation and reform and returns the computed
// household.
func (c *Client) Calculate(ctx context.Context, req engine.Request) (*engine.Result, error) {
	body, err := req.Body()
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%s/calculate", c.base, c.country)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.token)
	}

	labels := map[string]string{"engine": c.name}
	start := time.Now()
	defer func() { telemetry.TimerGlobal("engine_request", time.Since(start), labels) }()
	telemetry.CounterGlobal("engine_requests_total", 1, labels)

	resp, err := c.http.Do(hreq)
	if err != nil {
		telemetry.CounterGlobal("engine_errors_total", 1, labels)
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.CounterGlobal("engine_errors_total", 1, labels)
		return nil, fmt.Errorf("%s: read response: %w", c.name, err)
	}

	log.Debug().
		Str("engine", c.name).
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Dur("elapsed", time.Since(start)).
		Msg("Engine responded")

	if resp.StatusCode >= 300 {
		telemetry.CounterGlobal("engine_errors_total", 1, labels)
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &engine.StatusError{Engine: c.name, Code: resp.StatusCode, Message: msg}
	}
	if !gjson.ValidBytes(raw) {
		telemetry.CounterGlobal("engine_errors_total", 1, labels)
		return nil, &engine.StatusError{Engine: c.name, Message: "invalid JSON response"}
	}
	if status := gjson.GetBytes(raw, "status").String(); status != "ok" {
		telemetry.CounterGlobal("engine_errors_total", 1, labels)
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = "status " + status
		}
		return nil, &engine.StatusError{Engine: c.name, Message: msg}
	}
	result := gjson.GetBytes(raw, "result")
	if !result.IsObject() {
		telemetry.CounterGlobal("engine_errors_total", 1, labels)
		return nil, &engine.StatusError{Engine: c.name, Message: "response has no result"}
	}
	return &engine.Result{Raw: []byte(result.Raw), Year: req.Year}, nil
}
