// Package storage persists a reviewer's label set. Two backends implement
// Store: a local CSV file and a CSV file kept in a GitHub repository.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"

	"labeler/internal/config"
	"labeler/internal/domain"
	"labeler/internal/httpx"
)

var (
	// ErrRemoteUnavailable marks a load that fell back to an empty label set.
	ErrRemoteUnavailable = errors.New("remote labels unavailable")
	ErrRemoteWrite       = errors.New("remote write failed")
	ErrRevisionConflict  = errors.New("revision conflict")
)

// Store loads and saves the full label set of one reviewer. Save always
// rewrites the whole file.
type Store interface {
	Name() string
	Load(ctx context.Context, reviewer string) (domain.LabelSet, error)
	Save(ctx context.Context, reviewer string, labels domain.LabelSet) error
}

// WriteError is returned by remote saves that the server rejected or that
// never reached it.
type WriteError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *WriteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("github save failed: %v", e.Err)
	}
	return fmt.Sprintf("github save failed: %d: %s", e.StatusCode, e.Body)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// New picks the backend once at startup: GitHub when both token and repo are
// configured, the local file otherwise.
func New(cfg config.Config) Store {
	if cfg.GitHubConfigured() {
		log.Printf("storage backend=github repo=%s branch=%s", cfg.GitHubRepo, cfg.GitHubBranch)
		return NewGitHubStore(httpx.Client(), cfg.GitHubAPIURL, cfg.GitHubToken, cfg.GitHubRepo, cfg.GitHubBranch)
	}
	log.Printf("storage backend=local dir=%s", cfg.LabelDir)
	return NewLocalStore(cfg.LabelDir)
}
