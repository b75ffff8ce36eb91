package indexer

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// BuildReport collects statistics for one index build.
type BuildReport struct {
	Folder     string        `json:"folder"`
	IndexPath  string        `json:"index_path,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration"`
	Files      []FileReport  `json:"files"`
	Totals     Totals        `json:"totals"`
}

// FileReport is the outcome for one document.
type FileReport struct {
	Path      string `json:"path"`
	Chars     int    `json:"chars"`
	Chunks    int    `json:"chunks"`
	Embedded  int    `json:"embedded"`
	Bisected  int    `json:"bisected"`
	Dropped   int    `json:"dropped"`
	AddFailed int    `json:"add_failed"`
	Skipped   string `json:"skipped,omitempty"`
}

// Totals sums the file reports.
type Totals struct {
	Files     int `json:"files"`
	Skipped   int `json:"skipped"`
	Chunks    int `json:"chunks"`
	Embedded  int `json:"embedded"`
	Bisected  int `json:"bisected"`
	Dropped   int `json:"dropped"`
	AddFailed int `json:"add_failed"`
}

// Stored is the number of entries that made it into the index.
func (t Totals) Stored() int { return t.Embedded - t.AddFailed }

// NewBuildReport starts tracking a build of folder.
func NewBuildReport(folder string) *BuildReport {
	return &BuildReport{Folder: folder, StartedAt: time.Now()}
}

// AddFile records a processed document.
func (r *BuildReport) AddFile(f FileReport) {
	r.Files = append(r.Files, f)
	r.Totals.Files++
	r.Totals.Chunks += f.Chunks
	r.Totals.Embedded += f.Embedded
	r.Totals.Bisected += f.Bisected
	r.Totals.Dropped += f.Dropped
	r.Totals.AddFailed += f.AddFailed
}

// Skip records a document that was not indexed.
func (r *BuildReport) Skip(path, reason string) {
	r.Files = append(r.Files, FileReport{Path: path, Skipped: reason})
	r.Totals.Skipped++
}

// Finish marks the build as complete.
func (r *BuildReport) Finish(indexPath string) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.IndexPath = indexPath
}

// PrintSummary writes a human-readable summary.
func (r *BuildReport) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║         DOCINDEX BUILD REPORT        ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Files:       %-23d║\n", r.Totals.Files)
	fmt.Fprintf(w, "║ Skipped:     %-23d║\n", r.Totals.Skipped)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ CHUNKS\n")
	fmt.Fprintf(w, "║   Total:       %d\n", r.Totals.Chunks)
	fmt.Fprintf(w, "║   Embedded:    %d\n", r.Totals.Embedded)
	fmt.Fprintf(w, "║   Bisected:    %d\n", r.Totals.Bisected)
	fmt.Fprintf(w, "║   Dropped:     %d\n", r.Totals.Dropped)
	fmt.Fprintf(w, "║   Add failed:  %d\n", r.Totals.AddFailed)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ FILES\n")
	for _, f := range r.Files {
		if f.Skipped != "" {
			fmt.Fprintf(w, "║   %-24s skipped: %s\n", f.Path, f.Skipped)
			continue
		}
		status := "OK"
		if lost := f.Dropped + f.AddFailed; lost > 0 {
			status = fmt.Sprintf("%d lost", lost)
		}
		fmt.Fprintf(w, "║   %-24s %8s  %3d chunks  %s\n", f.Path, formatChars(f.Chars), f.Chunks, status)
	}
	if r.IndexPath != "" {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ Index: %s\n", r.IndexPath)
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *BuildReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func formatChars(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM ch", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk ch", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d ch", n)
	}
}
