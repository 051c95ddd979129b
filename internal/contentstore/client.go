// Package contentstore reads and writes JSON documents through a
// GitHub-style repository contents API.
package contentstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	acceptHeader   = "application/vnd.github.v3+json"
	maxErrorBody   = 4 << 10
	DefaultAPIURL  = "https://api.github.com"
	DefaultBranch  = "main"
	defaultTimeout = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	APIURL  string // e.g. https://api.github.com
	Repo    string // owner/name
	Branch  string
	Timeout time.Duration
	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}

// Client talks to the contents API of one repository. Credentials are
// supplied per call; the client itself holds none.
type Client struct {
	apiURL    string
	repo      string
	branch    string
	timeout   time.Duration
	transport http.RoundTripper
}

// New creates a new content store client.
func New(cfg Config) (*Client, error) {
	repo := strings.Trim(cfg.Repo, "/")
	if strings.Count(repo, "/") != 1 {
		return nil, fmt.Errorf("repo must be owner/name, got %q", cfg.Repo)
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	branch := cfg.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiURL:    apiURL,
		repo:      repo,
		branch:    branch,
		timeout:   timeout,
		transport: cfg.Transport,
	}, nil
}

// httpClient returns a client that sends "Authorization: token <credential>".
func (c *Client) httpClient(credential string) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential, TokenType: "token"})
	return &http.Client{
		Transport: &oauth2.Transport{Base: c.transport, Source: src},
		Timeout:   c.timeout,
	}
}

func (c *Client) contentsURL(collection, name string) string {
	parts := []string{c.apiURL, "repos", c.repo, "contents"}
	if collection = strings.Trim(collection, "/"); collection != "" {
		for _, seg := range strings.Split(collection, "/") {
			parts = append(parts, url.PathEscape(seg))
		}
	}
	parts = append(parts, url.PathEscape(name))
	return strings.Join(parts, "/")
}

type contentEnvelope struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// FetchDocument reads {collection}/{documentID}.json and returns the decoded
// JSON payload. It never retries.
func (c *Client) FetchDocument(ctx context.Context, collection, documentID, credential string) (json.RawMessage, error) {
	path := strings.Trim(collection, "/") + "/" + documentID + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentsURL(collection, documentID+".json"), nil)
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	req.Header.Set("Accept", acceptHeader)

	res, err := c.httpClient(credential).Do(req)
	if err != nil {
		return nil, &TransportError{Op: "fetch " + path, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, &NotFoundError{Path: path, StatusCode: res.StatusCode}
	}

	var env contentEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, &TransportError{Op: "decode envelope", Err: err}
	}
	if env.Encoding != "" && env.Encoding != "base64" {
		return nil, &TransportError{Op: "decode envelope", Err: fmt.Errorf("unsupported encoding %q", env.Encoding)}
	}
	// The API wraps base64 content at 60 columns.
	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(env.Content), ""))
	if err != nil {
		return nil, &TransportError{Op: "decode content", Err: err}
	}
	if !json.Valid(raw) {
		return nil, &TransportError{Op: "decode content", Err: errors.New("payload is not valid JSON")}
	}
	return json.RawMessage(raw), nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
}

// PutDocument creates {collection}/{name} holding payload encoded as indented
// JSON. Only 201 Created counts as success.
func (c *Client) PutDocument(ctx context.Context, collection, name string, payload any, message, credential string) error {
	path := strings.Trim(collection, "/") + "/" + name
	content, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("encode payload: %w", err)}
	}
	body, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.branch,
	})
	if err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(collection, name), bytes.NewReader(body))
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient(credential).Do(req)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &WriteError{Path: path, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	return nil
}
