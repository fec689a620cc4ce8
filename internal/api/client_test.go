package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxai/internal/model"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

// backend is a fake API server that records every request and answers with
// the handler registered for the path.
type backend struct {
	mu       sync.Mutex
	requests []recorded
	srv      *httptest.Server
}

func newBackend(t *testing.T, h http.HandlerFunc) (*backend, *Client) {
	t.Helper()
	b := &backend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.requests = append(b.requests, recorded{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		b.mu.Unlock()
		if h != nil {
			h(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "{}")
	}))
	t.Cleanup(b.srv.Close)

	c, err := New(b.srv.URL)
	require.NoError(t, err)
	return b, c
}

func (b *backend) all() []recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recorded(nil), b.requests...)
}

func (b *backend) last(t *testing.T) recorded {
	t.Helper()
	reqs := b.all()
	require.NotEmpty(t, reqs)
	return reqs[len(reqs)-1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadScheme(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	c, err := New("http://localhost:8000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api/v1", c.BaseURL())
}

func TestBearerHeader(t *testing.T) {
	b, c := newBackend(t, nil)
	ctx := t.Context()

	_, err := c.Agent.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, b.last(t).Auth)

	c.SetToken("tok-1")
	_, err = c.Agent.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", b.last(t).Auth)

	c.SetToken("")
	_, err = c.Agent.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, b.last(t).Auth)
}

func TestListOmitsUnsetParams(t *testing.T) {
	b, c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.Page[model.Email]{
			Items: []model.Email{{ID: "e1", Subject: "hi"}},
			Total: 1, Page: 1, PageSize: 20, TotalPages: 1,
		})
	})

	page, err := c.Emails.List(t.Context(), ListParams{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "hi", page.Items[0].Subject)

	req := b.last(t)
	assert.Equal(t, "/api/v1/email", req.Path)
	assert.Equal(t, "page=1&page_size=20", req.Query)

	f := false
	_, err = c.Emails.List(t.Context(), ListParams{Page: 2, PageSize: 20, IsRead: &f, Search: "invoice"})
	require.NoError(t, err)
	assert.Equal(t, "is_read=false&page=2&page_size=20&search=invoice", b.last(t).Query)
}

func TestAPIErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"string detail", `{"detail":"Email not found"}`, "Email not found"},
		{"validation list", `{"detail":[{"loc":["query","page"],"msg":"must be positive"}]}`, "page: must be positive"},
		{"no detail", `{"error":"x"}`, ""},
		{"not json", `oops`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Emails.Get(t.Context(), "e1", false)
			require.Error(t, err)

			var ae *APIError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, http.StatusNotFound, ae.StatusCode)
			assert.Equal(t, tt.detail, ae.Detail)
			assert.Equal(t, http.StatusNotFound, StatusCode(err))

			want := tt.detail
			if want == "" {
				want = "fallback"
			}
			assert.Equal(t, want, Message(err, "fallback"))
		})
	}
}

func TestMarkImportantIsIdempotentPatch(t *testing.T) {
	b, c := newBackend(t, nil)

	require.NoError(t, c.Emails.MarkImportant(t.Context(), "e 1", true))
	require.NoError(t, c.Emails.MarkImportant(t.Context(), "e 1", true))

	reqs := b.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0], reqs[1])
	assert.Equal(t, http.MethodPatch, reqs[0].Method)
	assert.Equal(t, "/api/v1/email/e%201/important", reqs[0].Path)
	assert.Equal(t, "important=true", reqs[0].Query)
}

func TestGmailConnectURLRequiresRedirect(t *testing.T) {
	_, c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"redirect_url": ""})
	})
	_, err := c.Accounts.GmailConnectURL(t.Context())
	assert.ErrorIs(t, err, ErrNoRedirectURL)
}

func TestGmailCallbackBuildsAccount(t *testing.T) {
	b, c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"email_account_id": "enc-1",
			"email":            "me@gmail.com",
			"message":          "ok",
		})
	})
	acct, err := c.Accounts.GmailCallback(t.Context(), "abc", "42")
	require.NoError(t, err)
	assert.Equal(t, "code=abc&state=42", b.last(t).Query)
	assert.Equal(t, "enc-1", acct.ID)
	assert.Equal(t, int64(42), acct.UserID)
	assert.Equal(t, "gmail", acct.ProviderType)
	assert.True(t, acct.IsActive)
	assert.Equal(t, model.DefaultFetchInterval, acct.FetchInterval)
}

func TestCreateRuleOmitsOtherVariantFields(t *testing.T) {
	b, c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.UserRule{ID: 7, RuleName: "spam"})
	})

	req := model.CreateRuleRequest{
		RuleName: "spam",
		RuleType: model.RuleMetadata,
		Action:   model.ActionDelete,
		RulePredicates: model.RulePredicates{
			SenderFilter: "ads@example.com",
		},
	}
	rule, err := c.Rules.Create(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rule.ID)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(b.last(t).Body), &body))
	assert.Equal(t, "ads@example.com", body["sender_filter"])
	assert.NotContains(t, body, "similarity_threshold")
	assert.NotContains(t, body, "classification_tags")
	assert.NotContains(t, body, "reference_email_id")
}

func TestRulesListFilter(t *testing.T) {
	b, c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.UserRule{})
	})
	active := true
	_, err := c.Rules.List(t.Context(), RuleFilter{IsActive: &active, RuleType: model.RuleSimilarity})
	require.NoError(t, err)
	assert.Equal(t, "is_active=true&rule_type=similarity_based", b.last(t).Query)

	_, err = c.Rules.List(t.Context(), RuleFilter{})
	require.NoError(t, err)
	assert.Empty(t, b.last(t).Query)
}

func TestDownloadAttachment(t *testing.T) {
	b, c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		_, _ = io.WriteString(w, "%PDF-1.4")
	})
	d, err := c.Emails.DownloadAttachment(t.Context(), "e1", 2)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/email/e1/attachments/2", b.last(t).Path)
	assert.Equal(t, "report.pdf", d.Filename)
	assert.Equal(t, "application/pdf", d.ContentType)
	assert.Equal(t, "%PDF-1.4", string(d.Data))
}

func TestMetricsObserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.ProcessingStats{Processed: 3})
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	c, err := New(srv.URL, WithRegisterer(reg))
	require.NoError(t, err)

	stats, err := c.Agent.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Processed)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "inboxai_api_request_duration_seconds", families[0].GetName())
	require.Len(t, families[0].GetMetric(), 1)
	assert.Equal(t, uint64(1), families[0].GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestProcessBatchBody(t *testing.T) {
	b, c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "total": 2, "status": "processing"})
	})
	res, err := c.Agent.ProcessBatch(t.Context(), []string{"a", "b"}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	req := b.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/v1/agent/process/batch", req.Path)
	assert.JSONEq(t, `{"email_ids":["a","b"],"async_mode":true}`, req.Body)
}

func TestDisconnectUnsupported(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusMethodNotAllowed} {
		b, c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
		})
		err := c.Accounts.Disconnect(t.Context(), "acc/1")
		require.ErrorIs(t, err, ErrUnsupported)
		assert.Equal(t, status, StatusCode(err))
		assert.Equal(t, http.MethodDelete, b.last(t).Method)
		assert.Equal(t, "/auth/email-accounts/acc%2F1", b.last(t).Path)
	}

	_, c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "not yours"})
	})
	err := c.Accounts.Disconnect(t.Context(), "acc1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, "not yours", Message(err, ""))
}
