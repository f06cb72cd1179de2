package domain

// DefaultClusters are the topical partitions shipped with the dataset.
var DefaultClusters = []string{"health", "civil", "climate", "culture", "digital", "food"}

type Document struct {
	Key  string // CallID, the filename without extension
	Name string // filename
	Path string
}

// ClusterProgress summarizes one reviewer's labels over one cluster.
type ClusterProgress struct {
	Cluster     string
	Total       int
	Labeled     int
	LabelCounts map[string]int
}

func (p ClusterProgress) Remaining() int {
	return p.Total - p.Labeled
}
