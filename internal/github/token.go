package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// TokenType classifies a GitHub token by prefix.
type TokenType string

const (
	TokenClassic     TokenType = "classic"
	TokenFineGrained TokenType = "fine-grained"
	TokenUnknown     TokenType = "unknown"
)

// ValidationStatus is the outcome of a token validation.
type ValidationStatus string

const (
	StatusValid             ValidationStatus = "valid"
	StatusInvalid           ValidationStatus = "invalid"
	StatusExpired           ValidationStatus = "expired"
	StatusInsufficientScope ValidationStatus = "insufficient_scope"
	StatusNetworkError      ValidationStatus = "network_error"
	StatusRateLimited       ValidationStatus = "rate_limited"
)

// requiredClassicScopes are the OAuth scopes a classic PAT must carry.
var requiredClassicScopes = []string{"repo"}

// TokenInfo is the structured result of a token validation.
type TokenInfo struct {
	Status             ValidationStatus
	TokenType          TokenType
	Username           string
	UserID             int64
	Scopes             []string
	RateLimitRemaining int
	RateLimitTotal     int
	RateLimitReset     string
	MissingScopes      []string
	Message            string
	MaskedToken        string
}

// DetectTokenType detects the token type from its prefix. Bare 40-hex tokens
// are the pre-prefix classic format; gho_/ghs_/ghu_ are OAuth and app tokens
// which behave like classic PATs for our purposes.
func DetectTokenType(token string) TokenType {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "github_pat_") {
		return TokenFineGrained
	}
	if strings.HasPrefix(token, "ghp_") {
		return TokenClassic
	}
	if len(token) == 40 && isHex(token) {
		return TokenClassic
	}
	for _, prefix := range []string{"gho_", "ghs_", "ghu_"} {
		if strings.HasPrefix(token, prefix) {
			return TokenClassic
		}
	}
	return TokenUnknown
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// MaskToken masks a token for safe display, keeping the prefix and the last
// four characters.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= 8 {
		return "****"
	}
	if strings.HasPrefix(token, "github_pat_") {
		return "github_pat_****" + token[len(token)-4:]
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// Validator checks GitHub tokens against the live API.
type Validator struct {
	baseURL string
	client  HTTPDoer
}

// NewValidator builds a token validator. A nil client uses a default with a
// 15 second timeout.
func NewValidator(baseURL string, client HTTPDoer) *Validator {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = DefaultAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Validator{baseURL: trimmed, client: client}
}

func (v *Validator) get(ctx context.Context, token, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	return v.client.Do(req)
}

// Validate authenticates the token against /user and inspects the response
// headers for scopes and rate limits.
func (v *Validator) Validate(ctx context.Context, token string) TokenInfo {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenInfo{Status: StatusInvalid, TokenType: TokenUnknown, Message: "token is empty"}
	}

	info := TokenInfo{
		TokenType:   DetectTokenType(token),
		MaskedToken: MaskToken(token),
	}

	resp, err := v.get(ctx, token, v.baseURL+"/user")
	if err != nil {
		info.Status = StatusNetworkError
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			info.Message = "connection timed out; check your network"
		} else {
			info.Message = "could not connect to the GitHub API; check your network"
		}
		return info
	}
	defer resp.Body.Close()

	info.RateLimitRemaining, info.RateLimitTotal, info.RateLimitReset = parseRateLimit(resp.Header)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		info.Status = StatusRateLimited
		info.Message = fmt.Sprintf("rate limited; resets at %s", info.RateLimitReset)
		return info
	case resp.StatusCode == http.StatusUnauthorized:
		var apiMsg struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&apiMsg)
		lower := strings.ToLower(apiMsg.Message)
		if strings.Contains(lower, "expired") {
			info.Status = StatusExpired
		} else {
			info.Status = StatusInvalid
		}
		if apiMsg.Message != "" {
			info.Message = apiMsg.Message
		} else {
			info.Message = "authentication failed; token is invalid or expired"
		}
		return info
	case resp.StatusCode == http.StatusForbidden:
		info.Status = StatusInsufficientScope
		info.Message = "access denied; token may lack required permissions"
		return info
	case resp.StatusCode != http.StatusOK:
		info.Status = StatusInvalid
		info.Message = fmt.Sprintf("unexpected response: HTTP %d", resp.StatusCode)
		return info
	}

	var user struct {
		Login string `json:"login"`
		ID    int64  `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err == nil {
		info.Username = user.Login
		info.UserID = user.ID
	}

	info.Scopes = parseScopes(resp.Header)

	// Fine-grained tokens never expose X-OAuth-Scopes.
	if info.TokenType == TokenUnknown {
		if len(info.Scopes) == 0 {
			info.TokenType = TokenFineGrained
		} else {
			info.TokenType = TokenClassic
		}
	}

	switch info.TokenType {
	case TokenClassic:
		for _, required := range requiredClassicScopes {
			if !containsScope(info.Scopes, required) {
				info.MissingScopes = append(info.MissingScopes, required)
			}
		}
	case TokenFineGrained:
		if !v.canListRepos(ctx, token) {
			info.MissingScopes = append(info.MissingScopes, "metadata:read")
		}
	}

	if len(info.MissingScopes) > 0 {
		info.Status = StatusInsufficientScope
		info.Message = "token missing required scope(s): " + strings.Join(info.MissingScopes, ", ")
		return info
	}

	info.Status = StatusValid
	if info.TokenType == TokenClassic {
		info.Message = "valid classic token with scopes: " + strings.Join(info.Scopes, ", ")
	} else {
		info.Message = "valid fine-grained token with repository access"
	}
	return info
}

// ValidateForRepo runs Validate and then confirms the token has push access
// to the given repository. Network failures on the repo probe are non-fatal
// since authentication already succeeded.
func (v *Validator) ValidateForRepo(ctx context.Context, token, repo string) TokenInfo {
	info := v.Validate(ctx, token)
	if info.Status != StatusValid {
		return info
	}

	resp, err := v.get(ctx, strings.TrimSpace(token), v.baseURL+"/repos/"+repo)
	if err != nil {
		info.Message += " (repo access check skipped due to network error)"
		return info
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		info.Status = StatusInsufficientScope
		info.Message = fmt.Sprintf("repository %q not found or not accessible with this token", repo)
	case http.StatusForbidden:
		info.Status = StatusInsufficientScope
		info.Message = fmt.Sprintf("token lacks permission to access repository %q", repo)
	case http.StatusOK:
		var repoData struct {
			Permissions struct {
				Push bool `json:"push"`
			} `json:"permissions"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&repoData); err == nil && !repoData.Permissions.Push {
			info.Status = StatusInsufficientScope
			info.Message = fmt.Sprintf("token has read-only access to %q; write (push) access is required", repo)
			return info
		}
		info.Message = fmt.Sprintf("token validated with write access to %q, authenticated as %s", repo, info.Username)
	}
	return info
}

func (v *Validator) canListRepos(ctx context.Context, token string) bool {
	resp, err := v.get(ctx, token, v.baseURL+"/user/repos?per_page=1")
	if err != nil {
		// Authentication already succeeded; treat probe failures as fine.
		return true
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func parseRateLimit(headers http.Header) (remaining, total int, reset string) {
	remaining, _ = strconv.Atoi(headers.Get("x-ratelimit-remaining"))
	total, _ = strconv.Atoi(headers.Get("x-ratelimit-limit"))
	if ts := headers.Get("x-ratelimit-reset"); ts != "" {
		if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
			reset = time.Unix(unix, 0).UTC().Format("2006-01-02 15:04:05 UTC")
		} else {
			reset = ts
		}
	}
	return remaining, total, reset
}

func parseScopes(headers http.Header) []string {
	raw := headers.Get("x-oauth-scopes")
	if raw == "" {
		return nil
	}
	var scopes []string
	for _, s := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	return scopes
}

func containsScope(scopes []string, target string) bool {
	for _, s := range scopes {
		if s == target {
			return true
		}
	}
	return false
}
