package pkgfetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/open-edge-platform/pkg-installer/internal/utils/network"
)

// Fetcher downloads source archives.
type Fetcher struct {
	Client *http.Client
	// Progress enables the terminal progress bar.
	Progress bool
}

// New returns a Fetcher using the hardened HTTP client.
func New(timeout time.Duration, progress bool) *Fetcher {
	return &Fetcher{
		Client:   network.NewSecureHTTPClient(timeout),
		Progress: progress,
	}
}

// Job is one archive to download into destDir under Name.
type Job struct {
	URL  string
	Name string
}

// FetchArchive downloads rawURL into destDir/name and returns the path. A
// file already present at that path is reused without a request; callers
// still verify its checksum. file:// URLs are copied from disk.
func (f *Fetcher) FetchArchive(ctx context.Context, rawURL, destDir, name string) (string, error) {
	log := logger.Logger()

	if name == "" {
		name = path.Base(rawURL)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("creating download directory %s: %w", destDir, err)
	}
	destPath := filepath.Join(destDir, name)

	if info, err := os.Stat(destPath); err == nil && info.Mode().IsRegular() {
		log.Infof("using cached %s", destPath)
		return destPath, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %s: %w", rawURL, err)
	}

	partPath := destPath + ".part"
	switch u.Scheme {
	case "file":
		err = copyLocal(u.Path, partPath)
	case "http", "https":
		err = f.download(ctx, rawURL, partPath, name)
	default:
		err = fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("downloading %s failed: %w", rawURL, err)
	}

	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("moving download into place: %w", err)
	}
	logger.FetchedReport.Add(rawURL)
	log.Infof("downloaded %s", destPath)
	return destPath, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, destPath, label string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "pkg-installer")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	var w io.Writer = out
	if f.Progress {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription("downloading "+label),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		w = io.MultiWriter(out, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return err
	}
	return out.Close()
}

func copyLocal(src, destPath string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FetchPackages downloads the given jobs into destDir using a pool of
// workers. It shows a single progress bar tracking files completed vs total
// and returns the downloaded paths keyed by URL along with the first error.
// Each URL is downloaded once; two URLs sharing a file name are rejected.
func (f *Fetcher) FetchPackages(ctx context.Context, jobs []Job, destDir string, workers int) (map[string]string, error) {
	log := logger.Logger()
	if workers <= 0 {
		workers = 1
	}

	jobs, err := uniqueJobs(jobs)
	if err != nil {
		return nil, err
	}

	total := len(jobs)
	queue := make(chan Job, total)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		paths    = make(map[string]string, total)
		firstErr error
	)

	var bar *progressbar.ProgressBar
	if f.Progress {
		bar = progressbar.NewOptions(total,
			progressbar.OptionFullWidth(),
			progressbar.OptionShowDescriptionAtLineEnd(),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}

	// single-file bars would fight over the terminal
	worker := &Fetcher{Client: f.Client}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if bar != nil {
					bar.Describe(fmt.Sprintf("downloading %s", job.Name))
				}

				p, err := worker.FetchArchive(ctx, job.URL, destDir, job.Name)

				mu.Lock()
				if err != nil {
					log.Errorf("downloading %s failed: %v", job.URL, err)
					if firstErr == nil {
						firstErr = err
					}
				} else {
					paths[job.URL] = p
				}
				mu.Unlock()

				if bar != nil {
					bar.Add(1)
				}
			}
		}()
	}

	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	wg.Wait()
	if bar != nil {
		bar.Finish()
	}
	return paths, firstErr
}

// uniqueJobs drops repeated URLs, keeping the first job for each.
func uniqueJobs(jobs []Job) ([]Job, error) {
	byURL := make(map[string]bool, len(jobs))
	byName := make(map[string]string, len(jobs))
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		if byURL[j.URL] {
			continue
		}
		if other, ok := byName[j.Name]; ok {
			return nil, fmt.Errorf("%s and %s would both be saved as %s", other, j.URL, j.Name)
		}
		byURL[j.URL] = true
		byName[j.Name] = j.URL
		out = append(out, j)
	}
	return out, nil
}
