package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/spiffcs/repopulse/internal/crypto"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/notify"
	"github.com/spiffcs/repopulse/internal/session"
	"github.com/spiffcs/repopulse/internal/store/sqlite"
	"github.com/spiffcs/repopulse/internal/subscription"
)

const webhookSecret = "s3cret"

type fakeExchanger struct {
	token, username string
	err             error
	codes           []string
}

func (f *fakeExchanger) Exchange(_ context.Context, code string) (string, string, error) {
	f.codes = append(f.codes, code)
	return f.token, f.username, f.err
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	srv   *Server
	db    *sqlite.DB
	svc   *subscription.Service
	sink  *notify.MemorySink
	oauth *fakeExchanger
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "repopulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	sink := &notify.MemorySink{}
	svc := subscription.NewService(db, crypto.NoopService{},
		subscription.WithClock(clock),
		subscription.WithSink(sink),
		subscription.WithOAuth(&oauth2.Config{
			ClientID: "client-id",
			Endpoint: github.Endpoint,
			Scopes:   subscription.OAuthScopes,
		}, session.NewOAuthStates(session.NewMemoryStore(clock))),
	)
	exchanger := &fakeExchanger{token: "gho_token", username: "octocat"}

	srv := New(":0", Deps{
		Store:         db,
		Subscriptions: svc,
		OAuth:         exchanger,
		Webhook:       NewWebhook(webhookSecret, db, sink, clock, 0),
	})
	return testEnv{srv: srv, db: db, svc: svc, sink: sink, oauth: exchanger}
}

func (e testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	down := New(":0", Deps{Store: failingPinger{}, Subscriptions: env.svc})
	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Subscribe(context.Background(), 7, "acme/widgets", model.Filter{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{
			name:     "known subscriber",
			path:     "/status/7",
			wantCode: http.StatusOK,
			wantBody: `{"chatId":7,"exists":true,"connected":false,"repoCount":1,"repoLimit":5}`,
		},
		{
			name:     "unknown subscriber",
			path:     "/status/8",
			wantCode: http.StatusOK,
			wantBody: `{"chatId":8,"exists":false,"connected":false,"repoCount":0,"repoLimit":0}`,
		},
		{
			name:     "invalid id",
			path:     "/status/abc",
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"invalid chat id"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func beginState(t *testing.T, env testEnv, chatID int64) string {
	t.Helper()
	authURL, err := env.svc.BeginConnect(context.Background(), chatID)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestOAuthCallback(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)
		state := beginState(t, env, 42)

		rec := env.do(httptest.NewRequest(http.MethodGet, "/github/callback?code=abc&state="+state, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "@octocat")
		assert.Equal(t, []string{"abc"}, env.oauth.codes)

		st, err := env.svc.Status(context.Background(), 42)
		require.NoError(t, err)
		assert.True(t, st.Connected)
		assert.Equal(t, "octocat", st.GitHubUsername)
		assert.Len(t, env.sink.Messages(), 1)

		// The state is single use.
		rec = env.do(httptest.NewRequest(http.MethodGet, "/github/callback?code=abc&state="+state, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Link Expired")
	})

	t.Run("missing parameters", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(httptest.NewRequest(http.MethodGet, "/github/callback?code=abc", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, env.oauth.codes)
	})

	t.Run("denied", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(httptest.NewRequest(http.MethodGet, "/github/callback?error=access_denied&error_description=%3Cb%3Eno%3C%2Fb%3E", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "&lt;b&gt;no&lt;/b&gt;")
	})

	t.Run("exchange failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.oauth.err = errors.New("bad_verification_code")
		state := beginState(t, env, 42)

		rec := env.do(httptest.NewRequest(http.MethodGet, "/github/callback?code=abc&state="+state, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		st, err := env.svc.Status(context.Background(), 42)
		require.NoError(t, err)
		assert.False(t, st.Connected)
	})

	t.Run("escapes username", func(t *testing.T) {
		env := newTestEnv(t)
		env.oauth.username = "<script>"
		state := beginState(t, env, 42)

		rec := env.do(httptest.NewRequest(http.MethodGet, "/github/callback?code=abc&state="+state, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "<script>")
	})
}

func TestOAuthRouteDisabled(t *testing.T) {
	env := newTestEnv(t)
	srv := New(":0", Deps{Store: env.db, Subscriptions: env.svc})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/github/callback?code=a&state=b", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(event, delivery string, body []byte, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/github/webhook", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	if delivery != "" {
		req.Header.Set("X-GitHub-Delivery", delivery)
	}
	req.Header.Set("X-Hub-Signature-256", sign(body, secret))
	return req
}

func issuePayload(action string, labels ...string) []byte {
	type label struct {
		Name string `json:"name"`
	}
	ls := make([]label, 0, len(labels))
	for _, l := range labels {
		ls = append(ls, label{Name: l})
	}
	payload := map[string]any{
		"action": action,
		"issue": map[string]any{
			"number":     7,
			"title":      "Crash on start",
			"html_url":   "https://github.com/Acme/Widgets/issues/7",
			"state":      "open",
			"user":       map[string]any{"login": "octocat"},
			"labels":     ls,
			"created_at": "2025-03-01T11:00:00Z",
		},
		"repository": map[string]any{"full_name": "Acme/Widgets"},
	}
	b, _ := json.Marshal(payload)
	return b
}

func TestWebhook(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		event         string
		body          []byte
		secret        string
		wantCode      int
		wantStatus    string
		wantDelivered int
	}{
		{
			name:          "labeled issue reaches both subscribers",
			event:         "issues",
			body:          issuePayload("opened", "Bug"),
			secret:        webhookSecret,
			wantCode:      http.StatusOK,
			wantStatus:    "processed",
			wantDelivered: 2,
		},
		{
			name:          "unlabeled issue skips the filtered subscriber",
			event:         "issues",
			body:          issuePayload("opened"),
			secret:        webhookSecret,
			wantCode:      http.StatusOK,
			wantStatus:    "processed",
			wantDelivered: 1,
		},
		{
			name:       "other actions are ignored",
			event:      "issues",
			body:       issuePayload("closed", "bug"),
			secret:     webhookSecret,
			wantCode:   http.StatusOK,
			wantStatus: "ignored",
		},
		{
			name:       "other events are ignored",
			event:      "star",
			body:       []byte(`{"action":"created"}`),
			secret:     webhookSecret,
			wantCode:   http.StatusOK,
			wantStatus: "ignored",
		},
		{
			name:     "bad signature",
			event:    "issues",
			body:     issuePayload("opened"),
			secret:   "wrong",
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.Subscribe(ctx, 1, "acme/widgets", model.Filter{Include: []string{"bug"}})
			require.NoError(t, err)
			_, err = env.svc.Subscribe(ctx, 2, "acme/widgets", model.Filter{})
			require.NoError(t, err)

			rec := env.do(webhookRequest(tt.event, "delivery-1", tt.body, tt.secret))
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				assert.Empty(t, env.sink.Messages())
				return
			}

			var resp webhookResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantDelivered, resp.Delivered)
			assert.Len(t, env.sink.Messages(), tt.wantDelivered)
		})
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.svc.Subscribe(ctx, 2, "acme/widgets", model.Filter{})
	require.NoError(t, err)

	body := issuePayload("opened")
	rec := env.do(webhookRequest("issues", "delivery-9", body, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(webhookRequest("issues", "delivery-9", body, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"duplicate"}`, rec.Body.String())
	assert.Len(t, env.sink.Messages(), 1)

	seen, err := env.db.IsEventProcessed(ctx, "delivery-9")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestWebhookMissingDelivery(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(webhookRequest("issues", "", issuePayload("opened"), webhookSecret))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookDoesNotMoveWatermarks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sub, err := env.svc.Subscribe(ctx, 2, "acme/widgets", model.Filter{})
	require.NoError(t, err)
	before, err := env.db.GetRepoState(ctx, sub.SubscriberID, sub.RepoID)
	require.NoError(t, err)

	rec := env.do(webhookRequest("issues", "delivery-3", issuePayload("opened"), webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	after, err := env.db.GetRepoState(ctx, sub.SubscriberID, sub.RepoID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
