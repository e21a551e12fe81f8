package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stats-service/internal/config"
	"stats-service/internal/models"
	"stats-service/internal/poll"
)

// ErrNotFound marks upstream 404s. Never retried.
var ErrNotFound = errors.New("upstream entity not found")

const (
	acceptHeader = "application/vnd.github+json"
	perPage      = 100
	// maxEventPages bounds the events listing; the upstream only serves the
	// most recent 300 events anyway.
	maxEventPages = 3
)

// GitHubClient performs upstream API calls and classifies statistics
// responses into ready / computing / hard-error shapes for the poller.
type GitHubClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

// NewGitHubClient builds the upstream client from configuration.
func NewGitHubClient(cfg *config.Config, logger *zap.Logger) *GitHubClient {
	timeout := cfg.GitHub.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GitHubClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.GitHub.BaseURL,
		token:      cfg.GitHub.Token,
		logger:     logger,
	}
}

// ListOrgRepos enumerates an organization's repositories, following
// pagination. The Link header's last-page hint bounds the loop.
func (c *GitHubClient) ListOrgRepos(ctx context.Context, org string) ([]models.Repo, error) {
	var repos []models.Repo
	lastPage := 1

	for page := 1; page <= lastPage; page++ {
		path := fmt.Sprintf("/orgs/%s/repos?per_page=%d&page=%d", url.PathEscape(org), perPage, page)
		resp, err := c.get(ctx, path)
		if err != nil {
			return nil, err
		}

		var payload []struct {
			Name  string `json:"name"`
			Owner struct {
				Login string `json:"login"`
			} `json:"owner"`
		}
		if err := c.decode(resp, &payload); err != nil {
			return nil, err
		}

		for _, entry := range payload {
			repos = append(repos, models.Repo{Owner: entry.Owner.Login, Name: entry.Name})
		}

		if page == 1 {
			if hint := parseLastPage(resp.Header.Get("Link")); hint > lastPage {
				lastPage = hint
			}
		}
		if len(payload) < perPage {
			break
		}
	}

	c.logger.Debug("listed org repositories",
		zap.String("org", org),
		zap.Int("count", len(repos)))
	return repos, nil
}

// ListUserEvents returns a user's recent typed events.
func (c *GitHubClient) ListUserEvents(ctx context.Context, login string) ([]models.Event, error) {
	var events []models.Event

	for page := 1; page <= maxEventPages; page++ {
		path := fmt.Sprintf("/users/%s/events?per_page=%d&page=%d", url.PathEscape(login), perPage, page)
		resp, err := c.get(ctx, path)
		if err != nil {
			return nil, err
		}

		var payload []struct {
			Type string `json:"type"`
			Repo struct {
				Name string `json:"name"`
			} `json:"repo"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := c.decode(resp, &payload); err != nil {
			return nil, err
		}

		for _, entry := range payload {
			events = append(events, models.Event{
				Type:      entry.Type,
				Repo:      entry.Repo.Name,
				CreatedAt: entry.CreatedAt,
			})
		}

		if len(payload) < perPage {
			break
		}
	}

	return events, nil
}

// FetchCommitActivity reads one repository's weekly commit activity. The
// upstream computes this lazily: 202 and 204 mean computing, and so does a
// structurally empty 200 payload, since a repository with any history always
// yields 52 buckets once the statistic materializes.
func (c *GitHubClient) FetchCommitActivity(ctx context.Context, owner, repo string) (poll.Status, []models.WeekBucket, error) {
	path := fmt.Sprintf("/repos/%s/%s/stats/commit_activity", url.PathEscape(owner), url.PathEscape(repo))
	resp, err := c.get(ctx, path)
	if err != nil {
		return 0, nil, err
	}

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		drain(resp)
		return poll.StatusComputing, nil, nil
	}

	var payload []struct {
		Week  int64 `json:"week"`
		Total int   `json:"total"`
		Days  []int `json:"days"`
	}
	if err := c.decode(resp, &payload); err != nil {
		return 0, nil, err
	}
	if len(payload) == 0 {
		return poll.StatusComputing, nil, nil
	}

	buckets := make([]models.WeekBucket, 0, len(payload))
	for _, entry := range payload {
		bucket := models.WeekBucket{Week: entry.Week, Total: entry.Total}
		for i := 0; i < len(entry.Days) && i < len(bucket.Days); i++ {
			bucket.Days[i] = entry.Days[i]
		}
		buckets = append(buckets, bucket)
	}
	return poll.StatusReady, buckets, nil
}

// FetchContributorStats reads per-contributor commit history. Same lazy
// computation semantics as commit activity.
func (c *GitHubClient) FetchContributorStats(ctx context.Context, owner, repo string) (poll.Status, []models.ContributorStats, error) {
	path := fmt.Sprintf("/repos/%s/%s/stats/contributors", url.PathEscape(owner), url.PathEscape(repo))
	resp, err := c.get(ctx, path)
	if err != nil {
		return 0, nil, err
	}

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		drain(resp)
		return poll.StatusComputing, nil, nil
	}

	var payload []struct {
		Total  int `json:"total"`
		Author struct {
			Login string `json:"login"`
		} `json:"author"`
		Weeks []struct {
			Week    int64 `json:"w"`
			Commits int   `json:"c"`
		} `json:"weeks"`
	}
	if err := c.decode(resp, &payload); err != nil {
		return 0, nil, err
	}
	if len(payload) == 0 {
		return poll.StatusComputing, nil, nil
	}

	contributors := make([]models.ContributorStats, 0, len(payload))
	for _, entry := range payload {
		stats := models.ContributorStats{
			Login: entry.Author.Login,
			Total: entry.Total,
		}
		for _, week := range entry.Weeks {
			stats.Weeks = append(stats.Weeks, models.WeekBucket{Week: week.Week, Total: week.Commits})
		}
		contributors = append(contributors, stats)
	}
	return poll.StatusReady, contributors, nil
}

// FetchLanguages reads a repository's language histogram. Unlike the
// statistics endpoints, an empty payload here is a final answer: a repository
// with no detected languages legitimately returns an empty object.
func (c *GitHubClient) FetchLanguages(ctx context.Context, owner, repo string) (models.LanguageBytes, error) {
	path := fmt.Sprintf("/repos/%s/%s/languages", url.PathEscape(owner), url.PathEscape(repo))
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	languages := make(models.LanguageBytes)
	if err := c.decode(resp, &languages); err != nil {
		return nil, err
	}
	return languages, nil
}

func (c *GitHubClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		drain(resp)
		return nil, poll.Permanent(fmt.Errorf("%w: %s", ErrNotFound, path))
	case resp.StatusCode >= 400:
		status := resp.StatusCode
		drain(resp)
		return nil, fmt.Errorf("upstream returned status %d for %s", status, path)
	}

	return resp, nil
}

func (c *GitHubClient) decode(resp *http.Response, target interface{}) error {
	defer drain(resp)
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

var lastPagePattern = regexp.MustCompile(`[?&]page=(\d+)[^>]*>;\s*rel="last"`)

// parseLastPage extracts the last-page hint from a pagination Link header.
// Returns 0 when the header carries no such hint.
func parseLastPage(linkHeader string) int {
	matches := lastPagePattern.FindStringSubmatch(linkHeader)
	if len(matches) != 2 {
		return 0
	}
	page, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return page
}
