package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultGarminBaseURL is the Garmin Connect API host used by the upload
// service.
const DefaultGarminBaseURL = "https://connectapi.garmin.com"

// ErrTokenExpired is returned when the stored OAuth2 token is past its
// expiry. Refresh it with a Garmin login tool and retry.
var ErrTokenExpired = errors.New("garmin token expired")

// OAuth2Token is the subset of a garth oauth2_token.json the client needs.
type OAuth2Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

// LoadToken reads a token file, expanding a leading ~.
func LoadToken(path string, now time.Time) (*OAuth2Token, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var tok OAuth2Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", path, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token file %s has no access_token", path)
	}
	if tok.ExpiresAt > 0 && !now.Before(time.Unix(tok.ExpiresAt, 0)) {
		return nil, fmt.Errorf("%w at %s", ErrTokenExpired, time.Unix(tok.ExpiresAt, 0).UTC().Format(time.RFC3339))
	}
	return &tok, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// uploadResponse is the part of the upload service reply that decides the
// outcome.
type uploadResponse struct {
	DetailedImportResult struct {
		UploadUUID *struct {
			UUID string `json:"uuid"`
		} `json:"uploadUuid"`
		Successes []struct {
			InternalID int64 `json:"internalId"`
		} `json:"successes"`
		Failures []struct {
			InternalID int64 `json:"internalId"`
			Messages   []struct {
				Code    int    `json:"code"`
				Content string `json:"content"`
			} `json:"messages"`
		} `json:"failures"`
	} `json:"detailedImportResult"`
}

// Client uploads FIT files to Garmin Connect.
type Client struct {
	baseURL    string
	tokenFile  string
	httpClient *http.Client
	log        *slog.Logger
	now        func() time.Time
}

// NewClient creates a Garmin Connect upload client.
func NewClient(baseURL, tokenFile string, timeout time.Duration, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultGarminBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokenFile:  tokenFile,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		now:        time.Now,
	}
}

// UploadActivity sends one FIT file. A 409 means Garmin already has the
// activity and counts as success. When the reply names the created activity,
// it is renamed to displayName; a failed rename is only logged.
// There are no retries here: a failed session is retried by a later pass.
func (c *Client) UploadActivity(ctx context.Context, filename string, r io.Reader, displayName string) error {
	tok, err := LoadToken(c.tokenFile, c.now())
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-service/upload/.fit", &body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req, tok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s: %w", filename, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusConflict:
		c.log.Info("activity already on garmin", "file", filename)
		return nil
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		return fmt.Errorf("upload failed (status %d): %s", resp.StatusCode, truncate(respBody, 512))
	}

	var result uploadResponse
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("decoding upload response: %w", err)
		}
	}
	if f := result.DetailedImportResult.Failures; len(f) > 0 {
		var msgs []string
		for _, fail := range f {
			for _, m := range fail.Messages {
				msgs = append(msgs, m.Content)
			}
		}
		return fmt.Errorf("upload rejected: %s", strings.Join(msgs, "; "))
	}

	for _, s := range result.DetailedImportResult.Successes {
		if displayName == "" || s.InternalID == 0 {
			continue
		}
		if err := c.rename(ctx, tok, s.InternalID, displayName); err != nil {
			c.log.Warn("renaming activity failed", "activity", s.InternalID, "name", displayName, "error", err)
		}
	}
	return nil
}

func (c *Client) rename(ctx context.Context, tok *OAuth2Token, id int64, name string) error {
	data, err := json.Marshal(map[string]any{"activityId": id, "activityName": name})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/activity-service/activity/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, tok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
	}
	return nil
}

func (c *Client) authorize(req *http.Request, tok *OAuth2Token) {
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("DI-Backend", "connectapi.garmin.com")
	req.Header.Set("NK", "NT")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
