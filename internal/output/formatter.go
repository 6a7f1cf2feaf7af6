package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	newsdedup "github.com/aakash-priyadarshi/news-duplication-system"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/feeds"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputCycleStats outputs the result of a fetch cycle.
func (f *Formatter) OutputCycleStats(stats *feeds.CycleStats) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(map[string]any{
			"feeds_total":        stats.FeedsTotal,
			"feeds_downloaded":   stats.FeedsDownloaded,
			"feeds_not_modified": stats.FeedsNotModified,
			"feeds_errored":      stats.FeedsErrored,
			"new_articles":       stats.NewArticles,
			"duration_ms":        stats.Duration.Milliseconds(),
		})
	case FormatText:
		fmt.Fprintf(f.out, "feeds_total=%d\n", stats.FeedsTotal)
		fmt.Fprintf(f.out, "feeds_downloaded=%d\n", stats.FeedsDownloaded)
		fmt.Fprintf(f.out, "feeds_not_modified=%d\n", stats.FeedsNotModified)
		fmt.Fprintf(f.out, "feeds_errored=%d\n", stats.FeedsErrored)
		fmt.Fprintf(f.out, "new_articles=%d\n", stats.NewArticles)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Fetched %d/%d feeds (%d not modified, %d errors)\n",
			stats.FeedsDownloaded, stats.FeedsTotal, stats.FeedsNotModified, stats.FeedsErrored)
		fmt.Fprintf(f.out, "%d new articles in %s\n", stats.NewArticles, stats.Duration.Round(time.Millisecond))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputFeedList outputs the feed roster with runtime counters.
func (f *Formatter) OutputFeedList(feedList []newsdedup.Feed) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(feedList)
	case FormatText:
		for _, fd := range feedList {
			fmt.Fprintf(f.out, "id=%d\tkey=%s\tname=%s\tenabled=%v\tprocessed=%d\terrors=%d\tlast_fetched=%s\n",
				fd.ID, fd.FeedKey, fd.Name, fd.Enabled, fd.ArticlesProcessed, fd.ErrorCount, formatTimePtr(fd.LastFetched))
		}
		return nil
	case FormatHuman:
		if len(feedList) == 0 {
			fmt.Fprintln(f.out, "No feeds configured")
			return nil
		}
		for _, fd := range feedList {
			status := "enabled"
			if !fd.Enabled {
				status = "disabled"
			}
			fetched := "never"
			if fd.LastFetched != nil {
				fetched = humanize.Time(*fd.LastFetched)
			}
			fmt.Fprintf(f.out, "[%d] %s (%s, %s)\n", fd.ID, fd.Name, fd.Category, status)
			fmt.Fprintf(f.out, "    %s\n", fd.URL)
			fmt.Fprintf(f.out, "    fetched %s, %d articles, %d errors\n", fetched, fd.ArticlesProcessed, fd.ErrorCount)
			if fd.LastError != nil {
				fmt.Fprintf(f.out, "    last error: %s\n", *fd.LastError)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputAlertList outputs alerts with their per-channel results.
func (f *Formatter) OutputAlertList(alerts []newsdedup.Alert) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(alerts)
	case FormatText:
		for _, a := range alerts {
			fmt.Fprintf(f.out, "id=%d\tstatus=%s\tpriority=%s\tsource=%s\ttitle=%s\tchannels=%s\n",
				a.ID, a.Status, a.Priority, a.Source, a.Title, strings.Join(a.Channels, ","))
		}
		return nil
	case FormatHuman:
		if len(alerts) == 0 {
			fmt.Fprintln(f.out, "No alerts")
			return nil
		}
		for _, a := range alerts {
			fmt.Fprintf(f.out, "[%d] %s  %s/%s  %s\n", a.ID, a.Title, a.Priority, a.Status, humanize.Time(a.CreatedAt))
			fmt.Fprintf(f.out, "    %s | %s\n", a.Source, a.URL)
			for _, r := range a.Results {
				mark := "ok"
				if !r.Success {
					mark = "FAILED"
					if r.Error != "" {
						mark = "FAILED: " + r.Error
					}
				}
				fmt.Fprintf(f.out, "    %-8s %s\n", r.Channel, mark)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputDuplicateList outputs duplicate links with their scores.
func (f *Formatter) OutputDuplicateList(links []newsdedup.DuplicateLink) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(links)
	case FormatText:
		for _, l := range links {
			fmt.Fprintf(f.out, "original=%d\tduplicate=%d\tscore=%.3f\tmethod=%s\n",
				l.OriginalArticleID, l.DuplicateArticleID, l.SimilarityScore, l.DetectionMethod)
		}
		return nil
	case FormatHuman:
		if len(links) == 0 {
			fmt.Fprintln(f.out, "No duplicates detected")
			return nil
		}
		for _, l := range links {
			fmt.Fprintf(f.out, "%.0f%% via %s  %s\n", l.SimilarityScore*100, l.DetectionMethod, humanize.Time(l.CreatedAt))
			fmt.Fprintf(f.out, "    original:  [%d] %s (%s)\n", l.OriginalArticleID, l.OriginalTitle, l.OriginalSource)
			fmt.Fprintf(f.out, "    duplicate: [%d] %s (%s)\n", l.DuplicateArticleID, l.DuplicateTitle, l.DuplicateSource)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputClusterList outputs clusters with centroid summaries.
func (f *Formatter) OutputClusterList(clusters []newsdedup.Cluster) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(clusters)
	case FormatText:
		for _, c := range clusters {
			fmt.Fprintf(f.out, "id=%d\tcategory=%s\tarticles=%d\tsources=%s\n",
				c.ID, c.Category, len(c.ArticleIDs), strings.Join(c.Sources, ","))
		}
		return nil
	case FormatHuman:
		if len(clusters) == 0 {
			fmt.Fprintln(f.out, "No clusters")
			return nil
		}
		for _, c := range clusters {
			fmt.Fprintf(f.out, "[%d] %s: %d article(s) from %s, updated %s\n",
				c.ID, c.Category, len(c.ArticleIDs), strings.Join(c.Sources, ", "), humanize.Time(c.UpdatedAt))
			if len(c.Tags) > 0 {
				fmt.Fprintf(f.out, "    tags: %s\n", strings.Join(c.Tags, ", "))
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputDedupResult outputs dedup verdict counts as a summary line.
func (f *Formatter) OutputDedupResult(processed, duplicates, uniques int) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(map[string]int{
			"processed":  processed,
			"duplicates": duplicates,
			"uniques":    uniques,
		})
	case FormatText:
		fmt.Fprintf(f.out, "processed=%d\tduplicates=%d\tuniques=%d\n", processed, duplicates, uniques)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Checked %d article(s): %d duplicate(s), %d unique\n", processed, duplicates, uniques)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
