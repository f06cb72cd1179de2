package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleManifest = `Table of contents

Destination Health Services ....................... 12
HORIZON-001: intro to the call ..................... 12
HORIZON-002: second call ........................... 14

Destination Climate Adaptation ..... 30
HORIZON-010: adaptation pathways ........ 31
  HORIZON-011: indented entry ...... 33
Some unrelated line
`

func TestDestinationsScenario(t *testing.T) {
	m := Parse("Destination Health Services ... 12\nHORIZON-001: intro ... 12\n")
	want := map[string]string{"HORIZON-001": "Health Services"}
	if diff := cmp.Diff(want, m.Destinations()); diff != "" {
		t.Fatalf("Destinations mismatch (-want +got):\n%s", diff)
	}
}

func TestDestinationsGroupsByHeader(t *testing.T) {
	got := Parse(sampleManifest).Destinations()
	want := map[string]string{
		"HORIZON-001": "Health Services",
		"HORIZON-002": "Health Services",
		"HORIZON-010": "Climate Adaptation",
		"HORIZON-011": "Climate Adaptation",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Destinations mismatch (-want +got):\n%s", diff)
	}
}

func TestDestinationsSkipsCallsBeforeAnyHeader(t *testing.T) {
	got := Parse("HORIZON-000: orphan ..... 3\nDestination Food\nHORIZON-100: soil ... 4\n").Destinations()
	want := map[string]string{"HORIZON-100": "Food"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Destinations mismatch (-want +got):\n%s", diff)
	}
}

func TestDestinationsIgnoresCallWithoutColon(t *testing.T) {
	got := Parse("Destination Culture ... 2\nHORIZON-200 no colon here\n").Destinations()
	if len(got) != 0 {
		t.Fatalf("expected no destinations, got %v", got)
	}
}

func TestPage(t *testing.T) {
	m := Parse(sampleManifest)
	tests := []struct {
		key  string
		want int
	}{
		{"HORIZON-001", 12},
		{"HORIZON-002", 14},
		{"HORIZON-010", 31},
		{"HORIZON-011", 33},
		{"HORIZON-999", UnknownPage},
		{"", UnknownPage},
	}
	for _, tt := range tests {
		if got := m.Page(tt.key); got != tt.want {
			t.Errorf("Page(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestPageQuotesKey(t *testing.T) {
	m := Parse("A+B: weird key ..... 7\nAAB: other ..... 9\n")
	if got := m.Page("A+B"); got != 7 {
		t.Fatalf("Page(A+B) = %d, want 7", got)
	}
}

func TestLoadMissingFileFailsOpen(t *testing.T) {
	m, ok := Load(filepath.Join(t.TempDir(), "divide_missing.txt"))
	if ok {
		t.Fatal("expected ok=false for a missing manifest")
	}
	if len(m.Destinations()) != 0 {
		t.Fatal("expected empty destinations for a missing manifest")
	}
	if m.Page("HORIZON-001") != UnknownPage {
		t.Fatal("expected UnknownPage for a missing manifest")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "divide_health.txt")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	m, ok := Load(path)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if m.Page("HORIZON-002") != 14 {
		t.Fatalf("Page(HORIZON-002) = %d, want 14", m.Page("HORIZON-002"))
	}
}
