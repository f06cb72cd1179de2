package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"labeler/internal/documents"
	"labeler/internal/domain"
	"labeler/internal/history"
	"labeler/internal/storage"
)

type memoryStore struct {
	saved   domain.LabelSet
	saves   int
	failing bool
	loadErr error
}

func (m *memoryStore) Name() string { return "memory" }

func (m *memoryStore) Load(context.Context, string) (domain.LabelSet, error) {
	if m.loadErr != nil {
		return domain.LabelSet{}, m.loadErr
	}
	return m.saved.Clone(), nil
}

func (m *memoryStore) Save(_ context.Context, _ string, labels domain.LabelSet) error {
	m.saves++
	if m.failing {
		return &storage.WriteError{StatusCode: 500, Body: "boom", Err: storage.ErrRemoteWrite}
	}
	m.saved = labels.Clone()
	return nil
}

type staticResolver struct {
	docs map[string][]domain.Document
	dest map[string]map[string]string
}

func (r staticResolver) Clusters() []string {
	var out []string
	for c := range r.docs {
		out = append(out, c)
	}
	return out
}

func (r staticResolver) Resolve(cluster string) ([]domain.Document, error) {
	docs, ok := r.docs[cluster]
	if !ok {
		return nil, documents.ErrClusterNotFound
	}
	return docs, nil
}

func (r staticResolver) Destinations(cluster string) map[string]string {
	return r.dest[cluster]
}

type captureRecorder struct {
	events []history.Event
}

func (c *captureRecorder) Record(_ context.Context, ev history.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func docs(keys ...string) []domain.Document {
	out := make([]domain.Document, len(keys))
	for i, k := range keys {
		out[i] = domain.Document{Key: k, Name: k + ".txt", Path: "/nonexistent/" + k + ".txt"}
	}
	return out
}

func newTestSession(t *testing.T, store *memoryStore) (*Session, *captureRecorder) {
	t.Helper()
	if store.saved == nil {
		store.saved = domain.LabelSet{}
	}
	rec := &captureRecorder{}
	resolver := staticResolver{
		docs: map[string][]domain.Document{
			"health": docs("A", "B", "C"),
			"food":   docs("F1"),
			"empty":  {},
		},
		dest: map[string]map[string]string{
			"health": {"A": "Health Services"},
		},
	}
	s, err := New(context.Background(), Options{
		Reviewer: "alice",
		Store:    store,
		Resolver: resolver,
		Recorder: rec,
		Content:  func(d domain.Document) string { return "content of " + d.Key },
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return s, rec
}

func mustDisplay(t *testing.T, s *Session) View {
	t.Helper()
	v, err := s.Display(context.Background())
	if err != nil {
		t.Fatalf("Display returned error: %v", err)
	}
	return v
}

func TestDisplayBeforeClusterSelected(t *testing.T) {
	s, _ := newTestSession(t, &memoryStore{})
	if _, err := s.Display(context.Background()); !errors.Is(err, ErrNoCluster) {
		t.Fatalf("expected ErrNoCluster, got %v", err)
	}
}

func TestAutoNoneOnLeave(t *testing.T) {
	store := &memoryStore{}
	s, rec := newTestSession(t, store)
	if err := s.SelectCluster("health"); err != nil {
		t.Fatalf("SelectCluster returned error: %v", err)
	}

	v := mustDisplay(t, s)
	if v.CallID != "A" || v.Heading != "Health Services" || v.Content != "content of A" {
		t.Fatalf("unexpected first view: %+v", v)
	}
	if store.saves != 0 {
		t.Fatalf("displaying must not save, saves=%d", store.saves)
	}

	s.Next()
	v = mustDisplay(t, s)
	if v.CallID != "B" || v.Heading != "health" {
		t.Fatalf("unexpected second view: %+v", v)
	}
	if diff := cmp.Diff(domain.NoneRecord(), store.saved["A"]); diff != "" {
		t.Fatalf("A should be auto-labeled none (-want +got):\n%s", diff)
	}
	if store.saves != 1 {
		t.Fatalf("expected one save, got %d", store.saves)
	}
	if len(rec.events) != 1 || rec.events[0].Source != history.SourceAuto || rec.events[0].CallID != "A" {
		t.Fatalf("unexpected history events: %+v", rec.events)
	}
}

func TestLabeledDocumentIsLeftAlone(t *testing.T) {
	store := &memoryStore{}
	s, _ := newTestSession(t, store)
	_ = s.SelectCluster("health")
	mustDisplay(t, s)

	if _, err := s.Toggle(context.Background(), domain.LabelEthics); err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}
	// The shell re-renders after each toggle; same document, no auto rule.
	mustDisplay(t, s)
	s.Next()
	mustDisplay(t, s)

	got := store.saved["A"]
	if !got.Has(domain.LabelEthics) || got.Has(domain.LabelNone) {
		t.Fatalf("labeled document was overwritten: %v", got.Active())
	}
	if store.saves != 1 {
		t.Fatalf("expected only the toggle save, got %d", store.saves)
	}
}

func TestRedisplaySameDocumentDoesNotAutoLabel(t *testing.T) {
	store := &memoryStore{}
	s, _ := newTestSession(t, store)
	_ = s.SelectCluster("health")
	mustDisplay(t, s)
	mustDisplay(t, s)
	s.Prev()
	mustDisplay(t, s)
	if store.saves != 0 {
		t.Fatalf("expected no saves, got %d", store.saves)
	}
}

func TestCurrentHasNoSideEffects(t *testing.T) {
	store := &memoryStore{}
	s, rec := newTestSession(t, store)
	_ = s.SelectCluster("health")

	v, err := s.Current()
	if err != nil {
		t.Fatalf("Current returned error: %v", err)
	}
	if v.CallID != "A" || v.Content != "content of A" {
		t.Fatalf("unexpected current view: %+v", v)
	}
	if _, ok := s.Labels()["A"]; ok {
		t.Fatal("Current must not create a record")
	}

	// A was only peeked at, so leaving it must not label it.
	s.Next()
	mustDisplay(t, s)
	if store.saves != 0 || len(rec.events) != 0 {
		t.Fatalf("expected no writes, saves=%d events=%d", store.saves, len(rec.events))
	}
	if _, err := s.Current(); err != nil {
		t.Fatalf("Current returned error: %v", err)
	}
	s.Prev()
	if _, err := s.Current(); err != nil {
		t.Fatalf("Current returned error: %v", err)
	}
	s.Next()
	mustDisplay(t, s)
	if store.saves != 0 {
		t.Fatalf("Current must not move the last displayed document, saves=%d", store.saves)
	}
}

func TestSeekSkippingDisplayBypassesRule(t *testing.T) {
	store := &memoryStore{}
	s, _ := newTestSession(t, store)
	_ = s.SelectCluster("health")
	mustDisplay(t, s) // A viewed
	s.Next()
	mustDisplay(t, s) // A -> none, B viewed
	s.Seek(2)
	s.Seek(0)
	mustDisplay(t, s) // leaving B for A

	if !store.saved["B"].Has(domain.LabelNone) {
		t.Fatal("B should have been auto-labeled on leave")
	}
	if _, ok := store.saved["C"]; ok {
		t.Fatal("C was never displayed and must not be labeled")
	}
}

func TestNavigationClamps(t *testing.T) {
	s, _ := newTestSession(t, &memoryStore{})
	_ = s.SelectCluster("health")

	s.Prev()
	if s.Index() != 0 {
		t.Fatalf("Prev at start moved to %d", s.Index())
	}
	s.Next()
	s.Next()
	s.Next()
	if s.Index() != 2 {
		t.Fatalf("Next past end moved to %d", s.Index())
	}
	s.Seek(-4)
	if s.Index() != 0 {
		t.Fatalf("Seek(-4) = %d", s.Index())
	}
	s.Seek(99)
	if s.Index() != 2 {
		t.Fatalf("Seek(99) = %d", s.Index())
	}
}

func TestClusterSwitchResetsIndexKeepsViewed(t *testing.T) {
	store := &memoryStore{}
	s, _ := newTestSession(t, store)
	_ = s.SelectCluster("health")
	s.Seek(1)
	mustDisplay(t, s) // B viewed

	if err := s.SelectCluster("health"); err != nil {
		t.Fatalf("reselecting cluster failed: %v", err)
	}
	if s.Index() != 1 {
		t.Fatalf("reselecting the same cluster must keep the index, got %d", s.Index())
	}

	if err := s.SelectCluster("food"); err != nil {
		t.Fatalf("SelectCluster(food) failed: %v", err)
	}
	if s.Index() != 0 {
		t.Fatalf("cluster switch must reset index, got %d", s.Index())
	}
	v := mustDisplay(t, s)
	if v.CallID != "F1" || v.Destination != "" {
		t.Fatalf("unexpected view after switch: %+v", v)
	}
	if !store.saved["B"].Has(domain.LabelNone) {
		t.Fatal("leaving B through a cluster switch should auto-label it")
	}
}

func TestSelectClusterErrors(t *testing.T) {
	s, _ := newTestSession(t, &memoryStore{})
	if err := s.SelectCluster("missing"); !errors.Is(err, documents.ErrClusterNotFound) {
		t.Fatalf("expected ErrClusterNotFound, got %v", err)
	}
	if err := s.SelectCluster("empty"); err != nil {
		t.Fatalf("SelectCluster(empty) returned error: %v", err)
	}
	if _, err := s.Display(context.Background()); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
}

func TestSaveFailureKeepsStateAndRetries(t *testing.T) {
	store := &memoryStore{failing: true}
	s, rec := newTestSession(t, store)
	_ = s.SelectCluster("health")
	mustDisplay(t, s)

	v, err := s.Toggle(context.Background(), domain.LabelNLP)
	if err != nil {
		t.Fatalf("Toggle must not fail on save errors, got %v", err)
	}
	if v.SaveError == "" {
		t.Fatal("expected save error in view")
	}
	if !s.Labels()["A"].Has(domain.LabelNLP) {
		t.Fatal("in-memory state must not be rolled back")
	}
	if len(rec.events) != 1 || rec.events[0].Saved {
		t.Fatalf("expected one unsaved history event, got %+v", rec.events)
	}

	store.failing = false
	v, err = s.Toggle(context.Background(), domain.LabelWUDAP)
	if err != nil || v.SaveError != "" {
		t.Fatalf("expected clean save, err=%v saveError=%q", err, v.SaveError)
	}
	got := store.saved["A"]
	if !got.Has(domain.LabelNLP) || !got.Has(domain.LabelWUDAP) {
		t.Fatalf("next save should carry the full state, got %v", got.Active())
	}
	if v.ActiveText != "NLP, WUDAP" {
		t.Fatalf("unexpected active text %q", v.ActiveText)
	}
}

func TestLoadFailureBecomesWarning(t *testing.T) {
	store := &memoryStore{loadErr: storage.ErrRemoteUnavailable}
	s, _ := newTestSession(t, store)
	_ = s.SelectCluster("food")
	v := mustDisplay(t, s)
	if len(v.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", v.Warnings)
	}
	if v.ActiveText != "(none)" {
		t.Fatalf("unexpected active text %q", v.ActiveText)
	}
}

func TestToggleUnknownLabel(t *testing.T) {
	store := &memoryStore{}
	s, _ := newTestSession(t, store)
	_ = s.SelectCluster("food")
	mustDisplay(t, s)
	if _, err := s.Toggle(context.Background(), "SPORTS"); !errors.Is(err, domain.ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("unknown label must not save, saves=%d", store.saves)
	}
}

func TestToggleThenNoneSurvivesNewSession(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dataDir := filepath.Join(root, "final_output_2")
	if err := os.MkdirAll(filepath.Join(dataDir, "health"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"b.txt", "a.txt"} {
		if err := os.WriteFile(filepath.Join(dataDir, "health", name), []byte(name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	resolver := documents.NewResolver(dataDir, root, []string{"health"})
	store := storage.NewLocalStore(filepath.Join(root, "labels"))

	first, err := New(ctx, Options{Reviewer: "alice", Store: store, Resolver: resolver})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := first.SelectCluster("health"); err != nil {
		t.Fatalf("SelectCluster returned error: %v", err)
	}
	v := mustDisplay(t, first)
	if v.CallID != "a" || v.Content != "a.txt" {
		t.Fatalf("unexpected first document: %+v", v)
	}
	if _, err := first.Toggle(ctx, domain.LabelEthics); err != nil {
		t.Fatalf("Toggle(ETHICS) returned error: %v", err)
	}
	if _, err := first.Toggle(ctx, domain.LabelNone); err != nil {
		t.Fatalf("Toggle(none) returned error: %v", err)
	}

	second, err := New(ctx, Options{Reviewer: "alice", Store: store, Resolver: resolver})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	want := domain.NoneRecord()
	if diff := cmp.Diff(want, second.Labels()["a"]); diff != "" {
		t.Fatalf("reloaded record mismatch (-want +got):\n%s", diff)
	}
	if second.Labels()["a"][domain.LabelEthics] != "" {
		t.Fatal("ETHICS should be empty after selecting none")
	}
}
