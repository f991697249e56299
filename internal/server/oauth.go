package server

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/ghclient"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/subscription"
)

// OAuthExchanger trades an authorization code for a token and the login of
// the user who granted it.
type OAuthExchanger interface {
	Exchange(ctx context.Context, code string) (token, username string, err error)
}

// GitHubOAuth is the production OAuthExchanger.
type GitHubOAuth struct {
	config *oauth2.Config
	opts   []ghclient.Option
}

var _ OAuthExchanger = (*GitHubOAuth)(nil)

// NewGitHubOAuth creates an exchanger for cfg. opts configure the client
// used to look up the user.
func NewGitHubOAuth(cfg *oauth2.Config, opts ...ghclient.Option) *GitHubOAuth {
	return &GitHubOAuth{config: cfg, opts: opts}
}

func (g *GitHubOAuth) Exchange(ctx context.Context, code string) (string, string, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return "", "", fmt.Errorf("token exchange failed: %w", err)
	}
	if tok.AccessToken == "" {
		return "", "", errors.New("token exchange returned no access token")
	}

	client, err := ghclient.NewClient(ctx, tok.AccessToken, g.opts...)
	if err != nil {
		return "", "", err
	}
	login, err := client.AuthenticatedUser(ctx)
	if err != nil {
		return "", "", fmt.Errorf("user info fetch failed: %w", err)
	}
	return tok.AccessToken, login, nil
}

func (s *Server) handleOAuthCallback(c echo.Context) error {
	ctx := c.Request().Context()

	if e := c.QueryParam("error"); e != "" {
		log.InfoContext(ctx, "oauth authorization denied", "error", e)
		return c.HTML(http.StatusBadRequest, page("❌ Authorization Failed", html.EscapeString(c.QueryParam("error_description"))))
	}

	code, state := c.QueryParam("code"), c.QueryParam("state")
	if code == "" || state == "" {
		return c.HTML(http.StatusBadRequest, page("❌ Invalid Request", "Missing code or state."))
	}

	chatID, err := s.deps.Subscriptions.ConsumeState(ctx, state)
	if subscription.IsStateNotFound(err) {
		return c.HTML(http.StatusBadRequest, page("❌ Link Expired", "Please start again with connect."))
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to consume oauth state", "error", err)
		return c.HTML(http.StatusInternalServerError, page("❌ Something went wrong", "Please try again."))
	}

	token, username, err := s.deps.OAuth.Exchange(ctx, code)
	if err != nil {
		log.WarnContext(ctx, "oauth exchange failed", "chat_id", chatID, "error", err)
		return c.HTML(http.StatusBadRequest, page("❌ Authorization Failed", "Failed to get access token. Please try again."))
	}
	if username == "" {
		username = constants.UnknownAuthor
	}

	if err := s.deps.Subscriptions.CompleteConnect(ctx, chatID, token, username); err != nil {
		log.ErrorContext(ctx, "failed to complete connect", "chat_id", chatID, "error", err)
		return c.HTML(http.StatusInternalServerError, page("❌ Something went wrong", "Please try again."))
	}

	return c.HTML(http.StatusOK, page("✅ GitHub Connected!",
		"Welcome, <strong>@"+html.EscapeString(username)+"</strong>! You can close this window."))
}

func page(title, body string) string {
	return `<html><body style="font-family: sans-serif; text-align: center; padding: 50px;">` +
		"<h2>" + title + "</h2><p>" + body + "</p></body></html>"
}
