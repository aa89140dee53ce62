// Package google wraps the three Google REST surfaces the service consumes:
// the OAuth2 token endpoint, the Drive file listing, and the Docs API. It is
// a capability wrapper only; nothing here knows about local documents.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"inkdraft/pkg/apperr"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultDriveURL    = "https://www.googleapis.com/drive/v3"
	defaultDocsURL     = "https://docs.googleapis.com/v1"
)

var scopes = []string{
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/drive.file",
}

// Identity is the signed-in Google account.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// File is a Drive listing entry. ModifiedTime stays in Drive's RFC3339 form;
// the ordering of listings is owned by Drive, not by us.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime"`
}

type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client

	// Overridable in tests.
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	DriveURL    string
	DocsURL     string
}

type Client struct {
	clientID     string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client
	authURL      string
	tokenURL     string
	userInfoURL  string
	driveURL     string
	docsURL      string
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		redirectURL:  opts.RedirectURL,
		httpClient:   httpClient,
		authURL:      defaulted(opts.AuthURL, defaultAuthURL),
		tokenURL:     defaulted(opts.TokenURL, defaultTokenURL),
		userInfoURL:  defaulted(opts.UserInfoURL, defaultUserInfoURL),
		driveURL:     strings.TrimRight(defaulted(opts.DriveURL, defaultDriveURL), "/"),
		docsURL:      strings.TrimRight(defaulted(opts.DocsURL, defaultDocsURL), "/"),
	}
}

func defaulted(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// AuthURL builds the consent redirect. access_type=offline plus
// prompt=consent is what makes Google return a refresh token.
func (c *Client) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURL)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("include_granted_scopes", "true")
	if state != "" {
		q.Set("state", state)
	}
	return c.authURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (accessToken, refreshToken string, err error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("redirect_uri", c.redirectURL)

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.postForm(ctx, c.tokenURL, form, &resp); err != nil {
		return "", "", err
	}
	if resp.RefreshToken == "" {
		return "", "", apperr.New(apperr.ExternalAuth, "no refresh token received")
	}
	return resp.AccessToken, resp.RefreshToken, nil
}

// Refresh trades a refresh token for a new access token. The refresh token
// itself is not rotated by Google and is reused as-is.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.postForm(ctx, c.tokenURL, form, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", apperr.New(apperr.ExternalAuth, "refresh returned no access token")
	}
	return resp.AccessToken, nil
}

// UserInfo is the cheapest authenticated call and doubles as the credential
// probe for the sync coordinator.
func (c *Client) UserInfo(ctx context.Context, token string) (Identity, error) {
	var id Identity
	if err := c.doJSON(ctx, http.MethodGet, c.userInfoURL, token, nil, &id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// ListDocuments returns the user's Google Docs in Drive's own ordering.
func (c *Client) ListDocuments(ctx context.Context, token string) ([]File, error) {
	q := url.Values{}
	q.Set("q", "mimeType='application/vnd.google-apps.document'")
	q.Set("fields", "files(id, name, modifiedTime)")
	q.Set("pageSize", "50")

	var resp struct {
		Files []File `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.driveURL+"/files?"+q.Encode(), token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// GetDocument fetches the raw Docs body. The structure is opaque to us.
func (c *Client) GetDocument(ctx context.Context, token, documentID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, c.docsURL+"/documents/"+url.PathEscape(documentID), token, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CreateDocument creates an empty Google Doc and returns its id.
func (c *Client) CreateDocument(ctx context.Context, token, title string) (string, error) {
	body := map[string]string{"title": title}
	var resp struct {
		DocumentID string `json:"documentId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.docsURL+"/documents", token, body, &resp); err != nil {
		return "", err
	}
	if resp.DocumentID == "" {
		return "", apperr.New(apperr.ExternalUnavailable, "document create returned no id")
	}
	return resp.DocumentID, nil
}

// ReplaceContent rewrites the document body with text. The Docs API only has
// insert/delete primitives, so a replace is a delete of the current body
// followed by a single insert at index 1.
func (c *Client) ReplaceContent(ctx context.Context, token, documentID, text string) error {
	end, err := c.bodyEndIndex(ctx, token, documentID)
	if err != nil {
		return err
	}

	var requests []map[string]any
	// endIndex 2 is an empty document (just the trailing newline); there is
	// nothing to delete and the final newline itself cannot be removed.
	if end > 2 {
		requests = append(requests, map[string]any{
			"deleteContentRange": map[string]any{
				"range": map[string]any{"startIndex": 1, "endIndex": end - 1},
			},
		})
	}
	if text != "" {
		requests = append(requests, map[string]any{
			"insertText": map[string]any{
				"location": map[string]any{"index": 1},
				"text":     text,
			},
		})
	}
	if len(requests) == 0 {
		return nil
	}

	body := map[string]any{"requests": requests}
	endpoint := c.docsURL + "/documents/" + url.PathEscape(documentID) + ":batchUpdate"
	return c.doJSON(ctx, http.MethodPost, endpoint, token, body, nil)
}

func (c *Client) bodyEndIndex(ctx context.Context, token, documentID string) (int, error) {
	var doc struct {
		Body struct {
			Content []struct {
				EndIndex int `json:"endIndex"`
			} `json:"content"`
		} `json:"body"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.docsURL+"/documents/"+url.PathEscape(documentID), token, nil, &doc); err != nil {
		return 0, err
	}
	end := 1
	for _, elem := range doc.Body.Content {
		if elem.EndIndex > end {
			end = elem.EndIndex
		}
	}
	return end, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apperr.Wrap(apperr.ExternalUnavailable, "build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(req, out)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.ExternalUnavailable, "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return apperr.Wrap(apperr.ExternalUnavailable, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ExternalUnavailable, "google request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return apperr.Newf(apperr.ExternalAuth, "google rejected credential (status %d)", res.StatusCode)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return apperr.Wrap(apperr.ExternalUnavailable,
			fmt.Sprintf("google returned status %d", res.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(snippet))))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.ExternalUnavailable, "decode google response", err)
	}
	return nil
}
