package progress

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"

	"labeler/internal/documents"
	"labeler/internal/domain"
	"labeler/internal/storage"
)

// Resolver is the part of documents.Resolver the summary needs.
type Resolver interface {
	Clusters() []string
	Resolve(cluster string) ([]domain.Document, error)
}

type Report struct {
	Reviewer string
	Clusters []domain.ClusterProgress
	Missing  []string
}

// Summarize counts, per cluster, how many documents carry at least one label.
// Clusters whose directory is missing are listed in Missing instead.
func Summarize(reviewer string, resolver Resolver, labels domain.LabelSet) Report {
	report := Report{Reviewer: reviewer}
	for _, cluster := range resolver.Clusters() {
		docs, err := resolver.Resolve(cluster)
		if err != nil {
			if !errors.Is(err, documents.ErrClusterNotFound) {
				log.Printf("progress resolve cluster=%s error=%v", cluster, err)
			}
			report.Missing = append(report.Missing, cluster)
			continue
		}
		p := domain.ClusterProgress{
			Cluster:     cluster,
			Total:       len(docs),
			LabelCounts: make(map[string]int),
		}
		for _, d := range docs {
			rec, ok := labels[d.Key]
			if !ok {
				continue
			}
			active := rec.Active()
			if len(active) == 0 {
				continue
			}
			p.Labeled++
			for _, l := range active {
				p.LabelCounts[l]++
			}
		}
		report.Clusters = append(report.Clusters, p)
	}
	return report
}

// Load reads the reviewer's labels from store and summarizes them.
func Load(ctx context.Context, reviewer string, store storage.Store, resolver Resolver) (Report, error) {
	labels, err := store.Load(ctx, reviewer)
	if err != nil {
		return Summarize(reviewer, resolver, domain.LabelSet{}), fmt.Errorf("load labels from %s: %w", store.Name(), err)
	}
	return Summarize(reviewer, resolver, labels), nil
}

func (r Report) Totals() (labeled, total int) {
	for _, c := range r.Clusters {
		labeled += c.Labeled
		total += c.Total
	}
	return labeled, total
}

// Format renders the report as plain text, one line per cluster.
func Format(r Report) string {
	var b strings.Builder
	labeled, total := r.Totals()
	fmt.Fprintf(&b, "Labeling progress for %s: %d / %d documents\n", r.Reviewer, labeled, total)
	for _, c := range r.Clusters {
		fmt.Fprintf(&b, "- %s: %d / %d", c.Cluster, c.Labeled, c.Total)
		var parts []string
		for _, l := range domain.LabelColumns {
			if n := c.LabelCounts[l]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s %d", l, n))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}
	if len(r.Missing) > 0 {
		fmt.Fprintf(&b, "Missing clusters: %s\n", strings.Join(r.Missing, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Post sends the formatted report to a Slack channel.
func Post(api *slack.Client, channelID string, r Report) error {
	_, _, err := api.PostMessage(channelID, slack.MsgOptionText(Format(r), false))
	if err != nil {
		return fmt.Errorf("post progress to slack: %w", err)
	}
	return nil
}

// StartScheduler runs digest on a standard 5-field cron schedule until ctx is
// done. It returns an error only when the schedule cannot be parsed.
func StartScheduler(ctx context.Context, schedule string, loc *time.Location, digest func(context.Context)) error {
	schedule = strings.TrimSpace(schedule)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid progress schedule '%s': %w", schedule, err)
	}
	if loc == nil {
		loc = time.Local
	}
	log.Printf("Progress digest scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now().In(loc)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next progress digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			digest(ctx)
		}
	}()
	return nil
}
