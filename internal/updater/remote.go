package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// RemoteInterface looks up the latest commit on the configured branch.
type RemoteInterface interface {
	LatestCommit(ctx context.Context) (string, error)
}

// RemoteClient queries the remote's commits REST endpoint.
type RemoteClient struct {
	apiBase    string
	repo       string
	branch     string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ RemoteInterface = (*RemoteClient)(nil)

// NewRemoteClient creates a client for repo ("owner/name") on branch.
// apiBase is normally "https://api.github.com"; tests point it at a local
// server.
func NewRemoteClient(apiBase, repo, branch, token string, timeout time.Duration, log zerolog.Logger) *RemoteClient {
	return &RemoteClient{
		apiBase:    apiBase,
		repo:       repo,
		branch:     branch,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "remote_client").Logger(),
	}
}

// LatestCommit returns the tip commit SHA of the branch.
func (c *RemoteClient) LatestCommit(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/commits/%s", c.apiBase, c.repo, c.branch)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build commit request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("commit lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("commit lookup returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode commit response: %w", err)
	}
	if payload.SHA == "" {
		return "", fmt.Errorf("commit response missing sha")
	}

	return payload.SHA, nil
}
