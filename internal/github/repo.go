package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"termbackup/internal/tbkerr"
)

// CreateRepo creates a private storage repository for the authenticated user
// and returns its full "owner/repo" name. A 422 means the repository already
// exists; in that case the owner is resolved from /user.
func (c *Client) CreateRepo(ctx context.Context, name string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"name":        name,
		"private":     true,
		"description": "termbackup encrypted storage repository",
		"auto_init":   true,
	})
	if err != nil {
		return "", tbkerr.Wrap(tbkerr.KindGitHub, err, "encode create request")
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/user/repos", body, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			FullName string `json:"full_name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return "", tbkerr.Wrap(tbkerr.KindGitHub, err, "decode create response")
		}
		return created.FullName, nil
	case http.StatusUnprocessableEntity:
		var user struct {
			Login string `json:"login"`
		}
		if err := c.getJSON(ctx, c.baseURL+"/user", "failed to resolve repository owner", &user); err != nil {
			return "", tbkerr.New(tbkerr.KindGitHub,
				"repository %q may already exist, but could not verify owner", name)
		}
		return user.Login + "/" + name, nil
	default:
		return "", apiError(resp, "failed to create repository")
	}
}

// InitRepoStructure seeds a freshly created repository with the directory
// layout termbackup expects: backups/, manifests/, and an empty ledger.
func (c *Client) InitRepoStructure(ctx context.Context, repo string) error {
	branch, err := c.GetDefaultBranch(ctx, repo)
	if err != nil {
		return err
	}

	emptyLedger, err := json.MarshalIndent(map[string]any{
		"tool_version": "6.0",
		"repository":   repo,
		"created_at":   "",
		"backups":      []any{},
	}, "", "  ")
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindGitHub, err, "encode empty ledger")
	}

	seeds := []struct {
		path    string
		content string
	}{
		{"backups/.gitkeep", ""},
		{"manifests/.gitkeep", ""},
		{"metadata.json", string(emptyLedger)},
	}

	for _, seed := range seeds {
		url := fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, repo, seed.path)

		checkResp, err := c.do(ctx, http.MethodGet, url, nil, "")
		if err != nil {
			return err
		}
		exists := checkResp.StatusCode == http.StatusOK
		checkResp.Body.Close()
		if exists {
			continue
		}

		body, err := json.Marshal(contentsRequest{
			Message: "Initialize " + seed.path,
			Content: encodeBase64(seed.content),
			Branch:  branch,
		})
		if err != nil {
			return tbkerr.Wrap(tbkerr.KindGitHub, err, "encode init request")
		}
		resp, err := c.do(ctx, http.MethodPut, url, body, "")
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			err := apiError(resp, "failed to create "+seed.path)
			resp.Body.Close()
			return err
		}
		resp.Body.Close()
	}
	return nil
}
