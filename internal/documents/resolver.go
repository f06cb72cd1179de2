package documents

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"labeler/internal/domain"
	"labeler/internal/manifest"
)

const documentExt = ".txt"

var (
	ErrClusterNotFound = errors.New("cluster directory not found")
	ErrUnknownCluster  = errors.New("unknown cluster")
)

// Resolver lists a cluster's documents in review order.
//
// Documents live in <dataDir>/<cluster>/*.txt and the cluster's manifest in
// <manifestRoot>/<cluster>/divide_<cluster>.txt.
type Resolver struct {
	dataDir      string
	manifestRoot string
	clusters     []string
}

func NewResolver(dataDir, manifestRoot string, clusters []string) *Resolver {
	if len(clusters) == 0 {
		clusters = domain.DefaultClusters
	}
	return &Resolver{
		dataDir:      dataDir,
		manifestRoot: manifestRoot,
		clusters:     append([]string(nil), clusters...),
	}
}

func (r *Resolver) Clusters() []string {
	return append([]string(nil), r.clusters...)
}

func (r *Resolver) known(cluster string) bool {
	for _, c := range r.clusters {
		if c == cluster {
			return true
		}
	}
	return false
}

func (r *Resolver) ClusterDir(cluster string) string {
	return filepath.Join(r.dataDir, cluster)
}

func (r *Resolver) ManifestPath(cluster string) string {
	return filepath.Join(r.manifestRoot, cluster, "divide_"+cluster+".txt")
}

// Resolve returns the cluster's documents ordered by manifest page number,
// then filename. Without a manifest the order is plain filename order.
func (r *Resolver) Resolve(cluster string) ([]domain.Document, error) {
	if !r.known(cluster) {
		return nil, fmt.Errorf("resolve %q: %w", cluster, ErrUnknownCluster)
	}
	dir := r.ClusterDir(cluster)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("resolve %q at %s: %w", cluster, dir, ErrClusterNotFound)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list cluster %q: %w", cluster, err)
	}

	var docs []domain.Document
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, documentExt) {
			continue
		}
		docs = append(docs, domain.Document{
			Key:  strings.TrimSuffix(name, documentExt),
			Name: name,
			Path: filepath.Join(dir, name),
		})
	}

	m, ok := manifest.Load(r.ManifestPath(cluster))
	if !ok {
		sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
		log.Printf("documents resolve cluster=%s count=%d order=alphabetical", cluster, len(docs))
		return docs, nil
	}

	pages := make(map[string]int, len(docs))
	for _, d := range docs {
		pages[d.Key] = m.Page(d.Key)
	}
	sort.Slice(docs, func(i, j int) bool {
		pi, pj := pages[docs[i].Key], pages[docs[j].Key]
		if pi != pj {
			return pi < pj
		}
		return docs[i].Name < docs[j].Name
	})
	log.Printf("documents resolve cluster=%s count=%d order=manifest", cluster, len(docs))
	return docs, nil
}

// Destinations returns the cluster's call-to-destination map, empty when the
// manifest is missing or unreadable.
func (r *Resolver) Destinations(cluster string) map[string]string {
	m, ok := manifest.Load(r.ManifestPath(cluster))
	if !ok {
		return map[string]string{}
	}
	return m.Destinations()
}

// Content reads a document. Read failures come back as a visible placeholder
// so that labeling can continue.
func Content(doc domain.Document) string {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		log.Printf("documents read key=%s error=%v", doc.Key, err)
		return fmt.Sprintf("[Error reading file: %v]", err)
	}
	return string(data)
}
