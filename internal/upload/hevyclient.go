package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/claude/hevysync/internal/models"
)

// DefaultHevyBaseURL is the public Hevy API.
const DefaultHevyBaseURL = "https://api.hevyapp.com"

// DefaultPageSize is the largest page the workouts endpoint serves.
const DefaultPageSize = 10

// maxPages bounds pagination in case the server keeps reporting more pages.
const maxPages = 1000

// HevyClient reads workouts from the Hevy API.
type HevyClient struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	log        *slog.Logger
}

// NewHevyClient creates a client for the Hevy API.
func NewHevyClient(baseURL, apiKey string, pageSize int, timeout time.Duration, log *slog.Logger) *HevyClient {
	if baseURL == "" {
		baseURL = DefaultHevyBaseURL
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HevyClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// FetchSessions returns the sessions with since < start <= until, oldest
// first. Workouts come newest first, so paging stops at the first page that
// reaches back to since. Workouts whose timestamps do not parse are logged
// and dropped.
func (c *HevyClient) FetchSessions(ctx context.Context, since, until time.Time) ([]models.Session, error) {
	var out []models.Session

	for page := 1; page <= maxPages; page++ {
		p, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}

		reachedSince := false
		for _, w := range p.Workouts {
			s, err := w.Session()
			if err != nil {
				c.log.Warn("dropping unparsable workout", "id", w.ID, "title", w.Title, "error", err)
				continue
			}
			if !s.Start.After(since) {
				reachedSince = true
				continue
			}
			if s.Start.After(until) {
				continue
			}
			out = append(out, s)
		}

		if reachedSince || len(p.Workouts) == 0 || page >= p.PageCount {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	c.log.Debug("fetched sessions", "count", len(out),
		"since", since.Format(time.RFC3339), "until", until.Format(time.RFC3339))
	return out, nil
}

func (c *HevyClient) fetchPage(ctx context.Context, page int) (*models.HevyWorkoutsPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/workouts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("workouts page %d failed (status %d): %s", page, resp.StatusCode, truncate(body, 512))
	}

	var p models.HevyWorkoutsPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding page %d: %w", page, err)
	}
	return &p, nil
}
