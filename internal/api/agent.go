package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"inboxai/internal/model"
)

type AgentAPI struct {
	c *Client
}

// Process runs AI processing on one email. With async the backend only
// queues the work and the result reports status "processing".
func (a *AgentAPI) Process(ctx context.Context, emailID string, async bool) (*model.ProcessResult, error) {
	var out model.ProcessResult
	err := a.c.do(ctx, call{
		method: http.MethodPost,
		route:  "/agent/process",
		path:   "/agent/process",
		query: url.Values{
			"email_id":   {emailID},
			"async_mode": {strconv.FormatBool(async)},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AgentAPI) ProcessBatch(ctx context.Context, emailIDs []string, async bool) (*model.BatchProcessResult, error) {
	body := struct {
		EmailIDs  []string `json:"email_ids"`
		AsyncMode bool     `json:"async_mode"`
	}{EmailIDs: emailIDs, AsyncMode: async}

	var out model.BatchProcessResult
	err := a.c.do(ctx, call{
		method: http.MethodPost,
		route:  "/agent/process/batch",
		path:   "/agent/process/batch",
		body:   body,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AgentAPI) Stats(ctx context.Context) (*model.ProcessingStats, error) {
	var out model.ProcessingStats
	err := a.c.do(ctx, call{method: http.MethodGet, route: "/agent/stats", path: "/agent/stats"}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Processing lists emails the agent is working on.
func (a *AgentAPI) Processing(ctx context.Context) ([]model.ProcessingEmail, error) {
	var out []model.ProcessingEmail
	err := a.c.do(ctx, call{method: http.MethodGet, route: "/agent/processing", path: "/agent/processing"}, &out)
	return out, err
}

// Pending lists emails waiting for the agent.
func (a *AgentAPI) Pending(ctx context.Context) ([]model.ProcessingEmail, error) {
	var out []model.ProcessingEmail
	err := a.c.do(ctx, call{method: http.MethodGet, route: "/agent/pending", path: "/agent/pending"}, &out)
	return out, err
}
