// Package review holds one reviewer's labeling session: the document cursor,
// which documents have been displayed, and the in-memory label set that is
// written through to storage on every change.
//
// A Session is not safe for concurrent use. Callers serialize interactions.
package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"labeler/internal/documents"
	"labeler/internal/domain"
	"labeler/internal/history"
	"labeler/internal/storage"
)

var (
	ErrNoCluster   = errors.New("no cluster selected")
	ErrNoDocuments = errors.New("cluster has no documents")
)

// Resolver is the part of documents.Resolver a session uses.
type Resolver interface {
	Clusters() []string
	Resolve(cluster string) ([]domain.Document, error)
	Destinations(cluster string) map[string]string
}

type Options struct {
	Reviewer string
	Store    storage.Store
	Resolver Resolver
	Recorder history.Recorder
	// Content loads a document's text. Defaults to documents.Content.
	Content func(domain.Document) string
}

type Session struct {
	id       string
	reviewer string
	store    storage.Store
	resolver Resolver
	recorder history.Recorder
	content  func(domain.Document) string

	labels   domain.LabelSet
	warnings []string

	cluster      string
	docs         []domain.Document
	destinations map[string]string
	index        int

	viewed        map[string]struct{}
	lastDisplayed string

	lastSaveErr error
}

// View is what the shell renders after each interaction.
type View struct {
	Reviewer    string             `json:"reviewer"`
	Cluster     string             `json:"cluster"`
	Index       int                `json:"index"`
	Count       int                `json:"count"`
	CallID      string             `json:"call_id"`
	Destination string             `json:"destination"`
	Heading     string             `json:"heading"`
	Content     string             `json:"content"`
	Labels      domain.LabelRecord `json:"labels"`
	Active      []string           `json:"active"`
	ActiveText  string             `json:"active_text"`
	SaveError   string             `json:"save_error,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// New loads the reviewer's labels. A load failure is kept as a warning and
// the session starts from an empty label set.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Reviewer == "" {
		return nil, fmt.Errorf("new session: reviewer is required")
	}
	if opts.Store == nil || opts.Resolver == nil {
		return nil, fmt.Errorf("new session: store and resolver are required")
	}
	if opts.Recorder == nil {
		opts.Recorder = history.Nop{}
	}
	if opts.Content == nil {
		opts.Content = documents.Content
	}

	s := &Session{
		id:       history.NewSessionID(),
		reviewer: opts.Reviewer,
		store:    opts.Store,
		resolver: opts.Resolver,
		recorder: opts.Recorder,
		content:  opts.Content,
		viewed:   make(map[string]struct{}),
	}

	labels, err := opts.Store.Load(ctx, opts.Reviewer)
	if err != nil {
		log.Printf("review load reviewer=%s backend=%s warning=%v", opts.Reviewer, opts.Store.Name(), err)
		s.warnings = append(s.warnings, fmt.Sprintf("Could not load saved labels: %v", err))
	}
	if labels == nil {
		labels = domain.LabelSet{}
	}
	s.labels = labels
	log.Printf("review session start id=%s reviewer=%s backend=%s records=%d", s.id, s.reviewer, s.store.Name(), len(labels))
	return s, nil
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Reviewer() string { return s.reviewer }
func (s *Session) Cluster() string  { return s.cluster }
func (s *Session) Index() int       { return s.index }
func (s *Session) Count() int       { return len(s.docs) }

// Labels returns a copy of the in-memory label set.
func (s *Session) Labels() domain.LabelSet {
	return s.labels.Clone()
}

func (s *Session) Documents() []domain.Document {
	return append([]domain.Document(nil), s.docs...)
}

// SelectCluster switches to cluster and rewinds to its first document.
// Selecting the current cluster again keeps the position. Viewed documents
// and labels are reviewer-wide and survive the switch.
func (s *Session) SelectCluster(cluster string) error {
	if cluster == s.cluster && s.docs != nil {
		return nil
	}
	docs, err := s.resolver.Resolve(cluster)
	if err != nil {
		return err
	}
	s.cluster = cluster
	s.docs = docs
	if s.docs == nil {
		s.docs = []domain.Document{}
	}
	s.destinations = s.resolver.Destinations(cluster)
	s.index = 0
	log.Printf("review cluster switch reviewer=%s cluster=%s documents=%d destinations=%d",
		s.reviewer, cluster, len(docs), len(s.destinations))
	return nil
}

func (s *Session) Next() {
	if s.index < len(s.docs)-1 {
		s.index++
	}
}

func (s *Session) Prev() {
	if s.index > 0 {
		s.index--
	}
}

// Seek moves to i, clamped into the cluster's range.
func (s *Session) Seek(i int) {
	switch {
	case len(s.docs) == 0 || i < 0:
		s.index = 0
	case i > len(s.docs)-1:
		s.index = len(s.docs) - 1
	default:
		s.index = i
	}
}

func (s *Session) current() (domain.Document, error) {
	if s.docs == nil {
		return domain.Document{}, ErrNoCluster
	}
	if len(s.docs) == 0 {
		return domain.Document{}, fmt.Errorf("%s: %w", s.cluster, ErrNoDocuments)
	}
	return s.docs[s.index], nil
}

// Display renders the current document. When the previously displayed
// document differs from the current one, was viewed, and carries no
// substantive label, it is stored as {none: yes} before the current document
// is marked viewed.
func (s *Session) Display(ctx context.Context) (View, error) {
	doc, err := s.current()
	if err != nil {
		return s.emptyView(), err
	}
	s.lastSaveErr = nil

	if prev := s.lastDisplayed; prev != "" && prev != doc.Key {
		if _, seen := s.viewed[prev]; seen && !s.labels.Record(prev).HasSubstantive() {
			rec := domain.NoneRecord()
			s.labels[prev] = rec
			log.Printf("review auto-none reviewer=%s call=%s", s.reviewer, prev)
			s.persist(ctx, prev, rec, history.SourceAuto)
		}
	}

	s.viewed[doc.Key] = struct{}{}
	s.lastDisplayed = doc.Key
	if _, ok := s.labels[doc.Key]; !ok {
		s.labels[doc.Key] = domain.NewLabelRecord()
	}
	return s.view(doc), nil
}

// Current renders the current document without touching review state: no
// auto-none, no viewed mark and no lazy record.
func (s *Session) Current() (View, error) {
	doc, err := s.current()
	if err != nil {
		return s.emptyView(), err
	}
	return s.view(doc), nil
}

// Toggle applies the reviewer's button press for label to the current
// document and saves the whole label set.
func (s *Session) Toggle(ctx context.Context, label string) (View, error) {
	doc, err := s.current()
	if err != nil {
		return s.emptyView(), err
	}
	next, err := s.labels.Record(doc.Key).Toggle(label)
	if err != nil {
		return s.view(doc), err
	}
	s.lastSaveErr = nil
	s.labels[doc.Key] = next
	log.Printf("review toggle reviewer=%s call=%s label=%s active=%v", s.reviewer, doc.Key, label, next.Active())
	s.persist(ctx, doc.Key, next, history.SourceToggle)
	return s.view(doc), nil
}

// persist writes the full label set. A failed save is reported on the next
// view and the in-memory state is kept, so the following change retries it.
func (s *Session) persist(ctx context.Context, callID string, rec domain.LabelRecord, source history.Source) {
	err := s.store.Save(ctx, s.reviewer, s.labels)
	if err != nil {
		log.Printf("review save reviewer=%s call=%s backend=%s error=%v", s.reviewer, callID, s.store.Name(), err)
		s.lastSaveErr = err
	}
	ev := history.EventFor(s.id, s.reviewer, s.cluster, callID, rec, source, err == nil)
	if herr := s.recorder.Record(ctx, ev); herr != nil {
		log.Printf("review history reviewer=%s call=%s error=%v", s.reviewer, callID, herr)
	}
}

func (s *Session) emptyView() View {
	return View{
		Reviewer: s.reviewer,
		Cluster:  s.cluster,
		Heading:  s.cluster,
		Labels:   domain.NewLabelRecord(),
		Warnings: append([]string(nil), s.warnings...),
	}
}

func (s *Session) view(doc domain.Document) View {
	rec := s.labels.Record(doc.Key)
	v := View{
		Reviewer:    s.reviewer,
		Cluster:     s.cluster,
		Index:       s.index,
		Count:       len(s.docs),
		CallID:      doc.Key,
		Destination: s.destinations[doc.Key],
		Content:     s.content(doc),
		Labels:      rec,
		Active:      rec.Active(),
		Warnings:    append([]string(nil), s.warnings...),
	}
	v.Heading = v.Destination
	if v.Heading == "" {
		v.Heading = s.cluster
	}
	v.ActiveText = "(none)"
	if len(v.Active) > 0 {
		v.ActiveText = strings.Join(v.Active, ", ")
	}
	if s.lastSaveErr != nil {
		v.SaveError = s.lastSaveErr.Error()
	}
	return v
}
