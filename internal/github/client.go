// Package github talks to the GitHub contents API, which is the storage
// backend for encrypted archives, manifest sidecars, and the ledger.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"termbackup/internal/tbkerr"
)

// DefaultAPIURL is the public GitHub API endpoint.
const DefaultAPIURL = "https://api.github.com"

const (
	defaultTimeout = 60 * time.Second
	maxRetries     = 3
	retryBaseDelay = 500 * time.Millisecond
)

// HTTPDoer describes the HTTP client used by the GitHub service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a thin wrapper over the GitHub contents API.
type Client struct {
	baseURL string
	token   string
	client  HTTPDoer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithBaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a client authenticated with the given token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultAPIURL,
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, accept string) (*http.Response, error) {
	if accept == "" {
		accept = "application/vnd.github.v3+json"
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBaseDelay << (attempt - 1)):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, tbkerr.Wrap(tbkerr.KindGitHub, err, "build request")
		}
		req.Header.Set("Authorization", "token "+c.token)
		req.Header.Set("Accept", accept)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt < maxRetries-1 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server returned %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, tbkerr.Wrap(tbkerr.KindGitHub, lastErr, "request failed after %d attempts", maxRetries).
		WithHint("check your network connection")
}

// apiError converts a non-success response into a structured error.
func apiError(resp *http.Response, context string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return tbkerr.New(tbkerr.KindGitHub, "%s: authentication failed", context).
			WithStatus(resp.StatusCode).
			WithHint("run 'termbackup update-token' to set a valid token")
	case http.StatusForbidden:
		return tbkerr.New(tbkerr.KindGitHub, "%s: access denied", context).
			WithStatus(resp.StatusCode).
			WithHint("ensure your token has the 'repo' scope for classic PATs")
	case http.StatusNotFound:
		return tbkerr.New(tbkerr.KindGitHub, "%s: resource not found", context).
			WithStatus(resp.StatusCode).
			WithHint("verify the repository exists and the token can reach it")
	case http.StatusUnprocessableEntity:
		return tbkerr.New(tbkerr.KindGitHub, "%s: validation failed: %s", context, snippet).
			WithStatus(resp.StatusCode)
	default:
		return tbkerr.New(tbkerr.KindGitHub, "%s: HTTP %d: %s", context, resp.StatusCode, snippet).
			WithStatus(resp.StatusCode)
	}
}

func (c *Client) getJSON(ctx context.Context, url, errContext string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiError(resp, errContext)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return tbkerr.Wrap(tbkerr.KindGitHub, err, "%s: decode response", errContext)
	}
	return nil
}

// GetDefaultBranch returns the repository's default branch name.
func (c *Client) GetDefaultBranch(ctx context.Context, repo string) (string, error) {
	var info struct {
		DefaultBranch string `json:"default_branch"`
	}
	url := fmt.Sprintf("%s/repos/%s", c.baseURL, repo)
	if err := c.getJSON(ctx, url, "failed to get repository info", &info); err != nil {
		return "", err
	}
	return info.DefaultBranch, nil
}

type contentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type contentsResponse struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
	Commit  struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// UploadBlob uploads an archive file under backups/ and returns the commit
// SHA.
func (c *Client) UploadBlob(ctx context.Context, repo, filePath string) (string, error) {
	branch, err := c.GetDefaultBranch(ctx, repo)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", tbkerr.Wrap(tbkerr.KindGitHub, err, "read archive for upload")
	}

	name := filepath.Base(filePath)
	body, err := json.Marshal(contentsRequest{
		Message: "Add backup " + name,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  branch,
	})
	if err != nil {
		return "", tbkerr.Wrap(tbkerr.KindGitHub, err, "encode upload request")
	}

	url := fmt.Sprintf("%s/repos/%s/contents/backups/%s", c.baseURL, repo, name)
	resp, err := c.do(ctx, http.MethodPut, url, body, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", apiError(resp, "failed to upload backup")
	}

	var result contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", tbkerr.Wrap(tbkerr.KindGitHub, err, "decode upload response")
	}
	return result.Commit.SHA, nil
}

// DownloadBlob streams an archive from backups/ into destPath.
func (c *Client) DownloadBlob(ctx context.Context, repo, fileName, destPath string) error {
	url := fmt.Sprintf("%s/repos/%s/contents/backups/%s", c.baseURL, repo, fileName)
	resp, err := c.do(ctx, http.MethodGet, url, nil, "application/vnd.github.raw")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiError(resp, "failed to download backup")
	}

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindGitHub, err, "create download file")
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return tbkerr.Wrap(tbkerr.KindGitHub, err, "write download file")
	}
	return nil
}

// DeleteBlob removes an archive from backups/.
func (c *Client) DeleteBlob(ctx context.Context, repo, fileName string) error {
	url := fmt.Sprintf("%s/repos/%s/contents/backups/%s", c.baseURL, repo, fileName)

	var info struct {
		SHA string `json:"sha"`
	}
	if err := c.getJSON(ctx, url, "failed to get file info for deletion", &info); err != nil {
		return err
	}

	branch, err := c.GetDefaultBranch(ctx, repo)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{
		"message": "Remove backup " + fileName,
		"sha":     info.SHA,
		"branch":  branch,
	})
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindGitHub, err, "encode delete request")
	}

	resp, err := c.do(ctx, http.MethodDelete, url, body, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiError(resp, "failed to delete backup")
	}
	return nil
}

// GetMetadata fetches the ledger file. found is false when the repository has
// no metadata.json yet.
func (c *Client) GetMetadata(ctx context.Context, repo string) (content string, sha string, found bool, err error) {
	url := fmt.Sprintf("%s/repos/%s/contents/metadata.json", c.baseURL, repo)
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return "", "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", "", false, nil
	}
	if resp.StatusCode >= 400 {
		return "", "", false, apiError(resp, "failed to read metadata")
	}

	var result contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", false, tbkerr.Wrap(tbkerr.KindGitHub, err, "decode metadata response")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(result.Content, "\n", ""))
	if err != nil {
		return "", "", false, tbkerr.Wrap(tbkerr.KindGitHub, err, "decode metadata content")
	}
	return string(decoded), result.SHA, true, nil
}

// UpdateMetadata writes the ledger file. sha is the blob SHA from the last
// read; GitHub rejects the write with 409 when it is stale, which callers use
// for optimistic concurrency.
func (c *Client) UpdateMetadata(ctx context.Context, repo, content, sha string) (string, error) {
	branch, err := c.GetDefaultBranch(ctx, repo)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(contentsRequest{
		Message: "Update metadata.json",
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
		Branch:  branch,
		SHA:     sha,
	})
	if err != nil {
		return "", tbkerr.Wrap(tbkerr.KindGitHub, err, "encode metadata request")
	}

	url := fmt.Sprintf("%s/repos/%s/contents/metadata.json", c.baseURL, repo)
	resp, err := c.do(ctx, http.MethodPut, url, body, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", apiError(resp, "failed to update metadata")
	}

	var result contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", tbkerr.Wrap(tbkerr.KindGitHub, err, "decode metadata response")
	}
	return result.Commit.SHA, nil
}

func encodeBase64(content string) string {
	return base64.StdEncoding.EncodeToString([]byte(content))
}

// ManifestFileName derives the sidecar name from a backup ID.
func ManifestFileName(backupID string) string {
	if len(backupID) > 12 {
		backupID = backupID[:12]
	}
	return "manifest_" + backupID + ".json"
}

// UploadManifest stores a manifest sidecar under manifests/.
func (c *Client) UploadManifest(ctx context.Context, repo, backupID, content string) error {
	fileName := ManifestFileName(backupID)
	url := fmt.Sprintf("%s/repos/%s/contents/manifests/%s", c.baseURL, repo, fileName)

	// Pick up the existing blob SHA so re-uploads overwrite.
	var sha string
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			var existing contentsResponse
			if decodeErr := json.NewDecoder(resp.Body).Decode(&existing); decodeErr == nil {
				sha = existing.SHA
			}
		}
		resp.Body.Close()
	}

	branch, err := c.GetDefaultBranch(ctx, repo)
	if err != nil {
		return err
	}
	body, err := json.Marshal(contentsRequest{
		Message: "Add manifest " + fileName,
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
		Branch:  branch,
		SHA:     sha,
	})
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindGitHub, err, "encode manifest request")
	}

	putResp, err := c.do(ctx, http.MethodPut, url, body, "")
	if err != nil {
		return err
	}
	defer putResp.Body.Close()
	if putResp.StatusCode >= 400 {
		return apiError(putResp, "failed to upload manifest")
	}
	return nil
}

// DownloadManifest fetches a manifest sidecar; found is false on 404.
func (c *Client) DownloadManifest(ctx context.Context, repo, backupID string) ([]byte, bool, error) {
	url := fmt.Sprintf("%s/repos/%s/contents/manifests/%s", c.baseURL, repo, ManifestFileName(backupID))
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode >= 400 {
		return nil, false, apiError(resp, "failed to download manifest")
	}

	var result contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, tbkerr.Wrap(tbkerr.KindGitHub, err, "decode manifest response")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(result.Content, "\n", ""))
	if err != nil {
		return nil, false, tbkerr.Wrap(tbkerr.KindGitHub, err, "decode manifest content")
	}
	return decoded, true, nil
}
