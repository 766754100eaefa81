package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/infra/config"
)

// ProviderGitHub names GitHub identities.
const ProviderGitHub = "github"

const defaultGitHubUserURL = "https://api.github.com/user"

// ErrNotConfigured indicates the provider has no client credentials.
var ErrNotConfigured = errors.New("oauth: provider not configured")

// GitHubProvider exchanges GitHub authorization codes for profiles.
type GitHubProvider struct {
	cfg     *oauth2.Config
	userURL string
}

// Option customises a GitHubProvider.
type Option func(*GitHubProvider)

// WithEndpoint overrides the authorization and token URLs.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(p *GitHubProvider) { p.cfg.Endpoint = endpoint }
}

// WithUserURL overrides the profile endpoint.
func WithUserURL(url string) Option {
	return func(p *GitHubProvider) { p.userURL = url }
}

// NewGitHubProvider returns ErrNotConfigured when client credentials are missing.
func NewGitHubProvider(settings config.OAuthSettings, opts ...Option) (*GitHubProvider, error) {
	if settings.GitHubClientID == "" || settings.GitHubClientSecret == "" {
		return nil, ErrNotConfigured
	}
	p := &GitHubProvider{
		cfg: &oauth2.Config{
			ClientID:     settings.GitHubClientID,
			ClientSecret: settings.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  settings.GitHubRedirectURL,
			Scopes:       []string{"read:user", "user:email"},
		},
		userURL: defaultGitHubUserURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// AuthCodeURL returns the consent URL carrying state.
func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state)
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Exchange trades code for an access token and fetches the user profile.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (domain.ExternalProfile, error) {
	if strings.TrimSpace(code) == "" {
		return domain.ExternalProfile{}, fmt.Errorf("oauth: missing authorization code")
	}

	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("oauth: exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("oauth: build user request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.cfg.Client(ctx, token).Do(req)
	if err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("oauth: fetch user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.ExternalProfile{}, fmt.Errorf("oauth: user request failed with status %d: %s", resp.StatusCode, body)
	}

	var user githubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("oauth: decode user: %w", err)
	}
	if user.ID == 0 || user.Login == "" {
		return domain.ExternalProfile{}, fmt.Errorf("oauth: profile has no id or login")
	}

	return domain.ExternalProfile{
		Provider: ProviderGitHub,
		Subject:  strconv.FormatInt(user.ID, 10),
		Username: user.Login,
		RealName: user.Name,
		Email:    user.Email,
	}, nil
}
