package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"labeler/internal/domain"
	"labeler/internal/labelfile"
)

const defaultGitHubAPIURL = "https://api.github.com"

// GitHubStore keeps the label CSV in a repository through the contents API.
// Updates must carry the blob sha of the file being replaced.
type GitHubStore struct {
	client *http.Client
	apiURL string
	token  string
	repo   string // owner/name
	branch string
}

type githubContentMeta struct {
	SHA  string `json:"sha"`
	Path string `json:"path"`
}

type githubPutRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

func NewGitHubStore(client *http.Client, apiURL, token, repo, branch string) *GitHubStore {
	if client == nil {
		client = http.DefaultClient
	}
	if apiURL == "" {
		apiURL = defaultGitHubAPIURL
	}
	if branch == "" {
		branch = "main"
	}
	return &GitHubStore{
		client: client,
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		repo:   repo,
		branch: branch,
	}
}

func (s *GitHubStore) Name() string {
	return fmt.Sprintf("github:%s@%s", s.repo, s.branch)
}

func (s *GitHubStore) contentsURL(reviewer string) string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", s.apiURL, s.repo, url.PathEscape(labelfile.FileName(reviewer)))
}

func (s *GitHubStore) newRequest(ctx context.Context, method, rawURL, accept string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Load fetches the raw CSV at the configured branch. A missing file is an
// empty label set; any other failure also yields an empty set, together with
// an error wrapping ErrRemoteUnavailable for the caller to show as a warning.
func (s *GitHubStore) Load(ctx context.Context, reviewer string) (domain.LabelSet, error) {
	apiURL := s.contentsURL(reviewer) + "?ref=" + url.QueryEscape(s.branch)
	req, err := s.newRequest(ctx, http.MethodGet, apiURL, "application/vnd.github.v3.raw", nil)
	if err != nil {
		return domain.LabelSet{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("github load reviewer=%s warning=%v", reviewer, err)
		return domain.LabelSet{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		log.Printf("github load reviewer=%s warning=%v", reviewer, err)
		return domain.LabelSet{}, fmt.Errorf("%w: reading response: %v", ErrRemoteUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		log.Printf("github load reviewer=%s file=%s not found, starting empty", reviewer, labelfile.FileName(reviewer))
		return domain.LabelSet{}, nil
	case resp.StatusCode != http.StatusOK:
		log.Printf("github load reviewer=%s warning=status %d", reviewer, resp.StatusCode)
		return domain.LabelSet{}, fmt.Errorf("%w: GitHub API returned %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	labels, err := labelfile.DecodeBytes(body)
	if err != nil {
		log.Printf("github load reviewer=%s warning=%v", reviewer, err)
		return domain.LabelSet{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	log.Printf("github load reviewer=%s records=%d", reviewer, len(labels))
	return labels, nil
}

// currentSHA returns the blob sha of the reviewer's file, or "" when the file
// does not exist or the lookup failed.
func (s *GitHubStore) currentSHA(ctx context.Context, reviewer string) string {
	apiURL := s.contentsURL(reviewer) + "?ref=" + url.QueryEscape(s.branch)
	req, err := s.newRequest(ctx, http.MethodGet, apiURL, "application/vnd.github+json", nil)
	if err != nil {
		return ""
	}
	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("github sha lookup reviewer=%s error=%v", reviewer, err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	var meta githubContentMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		log.Printf("github sha lookup reviewer=%s decode error=%v", reviewer, err)
		return ""
	}
	return meta.SHA
}

// Save creates or replaces the reviewer's file with the full label set.
// Failures are returned as *WriteError; nothing is retried.
func (s *GitHubStore) Save(ctx context.Context, reviewer string, labels domain.LabelSet) error {
	data, err := labelfile.Encode(labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}

	payload := githubPutRequest{
		Message: fmt.Sprintf("Update labels for %s", reviewer),
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  s.branch,
		SHA:     s.currentSHA(ctx, reviewer),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPut, s.contentsURL(reviewer), "application/vnd.github+json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("github save reviewer=%s error=%v", reviewer, err)
		return &WriteError{Err: fmt.Errorf("%w: %v", ErrRemoteWrite, err)}
	}
	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		log.Printf("github save reviewer=%s status=%d read body error=%v", reviewer, resp.StatusCode, readErr)
		respBody = append(respBody, fmt.Sprintf(" [body read error: %v]", readErr)...)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		log.Printf("github save reviewer=%s records=%d update=%t", reviewer, len(labels), payload.SHA != "")
		return nil
	case http.StatusConflict:
		log.Printf("github save reviewer=%s conflict sha=%s", reviewer, payload.SHA)
		return &WriteError{StatusCode: resp.StatusCode, Body: string(respBody), Err: ErrRevisionConflict}
	case http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(string(respBody)), "sha") {
			log.Printf("github save reviewer=%s conflict sha=%s", reviewer, payload.SHA)
			return &WriteError{StatusCode: resp.StatusCode, Body: string(respBody), Err: ErrRevisionConflict}
		}
	}
	log.Printf("github save reviewer=%s failed status=%d", reviewer, resp.StatusCode)
	return &WriteError{StatusCode: resp.StatusCode, Body: string(respBody), Err: ErrRemoteWrite}
}
