package api

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"inboxai/internal/model"
)

type EmailsAPI struct {
	c *Client
}

// ListParams filters GET /email. Zero values are not sent.
type ListParams struct {
	Page        int
	PageSize    int
	Status      model.EmailStatus
	IsRead      *bool
	IsImportant *bool
	IsDeleted   *bool
	Search      string
	AccountID   string
}

// Values encodes the set parameters.
func (p ListParams) Values() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(p.PageSize))
	}
	if p.Status != "" {
		q.Set("status", string(p.Status))
	}
	setBool(q, "is_read", p.IsRead)
	setBool(q, "is_important", p.IsImportant)
	setBool(q, "is_deleted", p.IsDeleted)
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if p.AccountID != "" {
		q.Set("account_id", p.AccountID)
	}
	return q
}

func (e *EmailsAPI) List(ctx context.Context, p ListParams) (*model.Page[model.Email], error) {
	var out model.Page[model.Email]
	err := e.c.do(ctx, call{
		method: http.MethodGet,
		route:  "/email",
		path:   "/email",
		query:  p.Values(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one email. The backend marks it read as a side effect.
func (e *EmailsAPI) Get(ctx context.Context, id string, includeDeleted bool) (*model.Email, error) {
	q := url.Values{}
	if includeDeleted {
		q.Set("include_deleted", "true")
	}
	var out model.Email
	err := e.c.do(ctx, call{
		method: http.MethodGet,
		route:  "/email/{id}",
		path:   "/email/" + url.PathEscape(id),
		query:  q,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *EmailsAPI) Summary(ctx context.Context, id string) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	err := e.c.do(ctx, call{
		method: http.MethodGet,
		route:  "/email/{id}/summary",
		path:   "/email/" + url.PathEscape(id) + "/summary",
	}, &out)
	return out.Summary, err
}

func (e *EmailsAPI) MarkRead(ctx context.Context, id string, read bool) error {
	return e.patchFlag(ctx, id, "read", "read", read)
}

// MarkImportant sets the important flag. Repeating a call is harmless.
func (e *EmailsAPI) MarkImportant(ctx context.Context, id string, important bool) error {
	return e.patchFlag(ctx, id, "important", "important", important)
}

func (e *EmailsAPI) Archive(ctx context.Context, id string, archived bool) error {
	return e.patchFlag(ctx, id, "archive", "archived", archived)
}

func (e *EmailsAPI) patchFlag(ctx context.Context, id, action, param string, v bool) error {
	return e.c.do(ctx, call{
		method: http.MethodPatch,
		route:  "/email/{id}/" + action,
		path:   "/email/" + url.PathEscape(id) + "/" + action,
		query:  url.Values{param: {strconv.FormatBool(v)}},
	}, nil)
}

func (e *EmailsAPI) Delete(ctx context.Context, id string) error {
	return e.c.do(ctx, call{
		method: http.MethodDelete,
		route:  "/email/{id}",
		path:   "/email/" + url.PathEscape(id),
	}, nil)
}

// Ingest asks the backend to fetch new mail, for one account or for all
// accounts when accountID is empty.
func (e *EmailsAPI) Ingest(ctx context.Context, accountID string) (*model.IngestResult, error) {
	q := url.Values{}
	if accountID != "" {
		q.Set("account_id", accountID)
	}
	var out model.IngestResult
	err := e.c.do(ctx, call{
		method: http.MethodPost,
		route:  "/email/ingest",
		path:   "/email/ingest",
		query:  q,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Download is a fetched attachment.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

const maxAttachmentSize = 100 << 20

// DownloadAttachment fetches attachment number index of an email.
func (e *EmailsAPI) DownloadAttachment(ctx context.Context, id string, index int) (*Download, error) {
	route := "/email/{id}/attachments/{index}"
	resp, err := e.c.send(ctx, call{
		method: http.MethodGet,
		route:  route,
		path:   "/email/" + url.PathEscape(id) + "/attachments/" + strconv.Itoa(index),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", route, err)
	}
	if len(data) > maxAttachmentSize {
		return nil, fmt.Errorf("GET %s: attachment larger than %d bytes", route, maxAttachmentSize)
	}

	d := &Download{ContentType: resp.Header.Get("Content-Type"), Data: data}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			d.Filename = params["filename"]
		}
	}
	return d, nil
}
