package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StringListReport accumulates lines that are flushed to a report file at the
// end of a run.
type StringListReport struct {
	mu    sync.Mutex
	Title string
	Items []string
}

// FetchedReport records every archive URL downloaded during the run.
var FetchedReport = &StringListReport{Title: "fetched"}

// Add appends an item to the report.
func (r *StringListReport) Add(item string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Items = append(r.Items, item)
}

// Len returns the number of pending items.
func (r *StringListReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Items)
}

// WriteTo appends the pending items to <dir>/report-<title>.txt and clears
// them. It returns the report file path.
func (r *StringListReport) WriteTo(dir string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	reportPath := filepath.Join(dir, fmt.Sprintf("report-%s.txt", safeTitle(r.Title)))
	f, err := os.OpenFile(reportPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("opening report file: %w", err)
	}
	defer f.Close()

	for _, item := range r.Items {
		if _, err := fmt.Fprintln(f, item); err != nil {
			return "", fmt.Errorf("writing report file: %w", err)
		}
	}
	r.Items = nil
	return reportPath, nil
}

func safeTitle(title string) string {
	if title == "" {
		return "untitled"
	}
	out := make([]rune, 0, len(title))
	for _, c := range title {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
