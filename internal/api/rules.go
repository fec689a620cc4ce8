package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"inboxai/internal/model"
)

type RulesAPI struct {
	c *Client
}

// RuleFilter narrows GET /rules. Unset fields are not sent.
type RuleFilter struct {
	IsActive *bool
	RuleType model.RuleType
}

func (r *RulesAPI) List(ctx context.Context, f RuleFilter) ([]model.UserRule, error) {
	q := url.Values{}
	setBool(q, "is_active", f.IsActive)
	if f.RuleType != "" {
		q.Set("rule_type", string(f.RuleType))
	}
	var out []model.UserRule
	err := r.c.do(ctx, call{method: http.MethodGet, route: "/rules", path: "/rules", query: q}, &out)
	return out, err
}

func (r *RulesAPI) Get(ctx context.Context, id int64) (*model.UserRule, error) {
	var out model.UserRule
	err := r.c.do(ctx, call{method: http.MethodGet, route: "/rules/{id}", path: rulePath(id)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RulesAPI) Create(ctx context.Context, req model.CreateRuleRequest) (*model.UserRule, error) {
	var out model.UserRule
	err := r.c.do(ctx, call{method: http.MethodPost, route: "/rules", path: "/rules", body: req}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateFromEmail creates a similarity rule using emailID as the reference.
func (r *RulesAPI) CreateFromEmail(ctx context.Context, emailID string, req model.CreateRuleFromEmailRequest) (*model.UserRule, error) {
	var out model.UserRule
	err := r.c.do(ctx, call{
		method: http.MethodPost,
		route:  "/rules/from-email/{id}",
		path:   "/rules/from-email/" + url.PathEscape(emailID),
		body:   req,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RulesAPI) Update(ctx context.Context, id int64, req model.UpdateRuleRequest) (*model.UserRule, error) {
	var out model.UserRule
	err := r.c.do(ctx, call{method: http.MethodPut, route: "/rules/{id}", path: rulePath(id), body: req}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RulesAPI) Delete(ctx context.Context, id int64) error {
	return r.c.do(ctx, call{method: http.MethodDelete, route: "/rules/{id}", path: rulePath(id)}, nil)
}

// Toggle flips is_active and returns the updated rule.
func (r *RulesAPI) Toggle(ctx context.Context, id int64) (*model.UserRule, error) {
	var out model.UserRule
	err := r.c.do(ctx, call{
		method: http.MethodPost,
		route:  "/rules/{id}/toggle",
		path:   rulePath(id) + "/toggle",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func rulePath(id int64) string {
	return "/rules/" + strconv.FormatInt(id, 10)
}
