// Package downloader fetches distribution archives over HTTP or from local
// paths, writing each to a temp file before renaming it into place.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// Job represents a download job.
type Job struct {
	URL      string // http(s) URL, file:// URL or plain path
	DestPath string

	// Overwrite replaces an existing DestPath instead of keeping it.
	Overwrite bool
}

// Result represents a download result.
type Result struct {
	Job   Job
	Error error
}

// Downloader handles parallel downloads.
type Downloader struct {
	workers int
	client  *http.Client
}

// NewDownloader creates a new downloader with the specified number of workers.
func NewDownloader(workers int, client *http.Client) *Downloader {
	if workers < 1 {
		workers = 1
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Downloader{
		workers: workers,
		client:  client,
	}
}

// Download runs jobs in parallel. Results are in job order.
func (d *Downloader) Download(ctx context.Context, jobs []Job) []Result {
	type indexed struct {
		i   int
		job Job
	}

	jobChan := make(chan indexed, len(jobs))
	results := make([]Result, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				results[j.i] = Result{Job: j.job, Error: d.downloadOne(ctx, j.job)}
			}
		}()
	}

	for i, job := range jobs {
		jobChan <- indexed{i: i, job: job}
	}
	close(jobChan)
	wg.Wait()

	return results
}

// Fetch downloads a single location to destPath.
func (d *Downloader) Fetch(ctx context.Context, location, destPath string) error {
	return d.downloadOne(ctx, Job{URL: location, DestPath: destPath})
}

func (d *Downloader) downloadOne(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Already present
	if _, err := os.Stat(job.DestPath); err == nil && !job.Overwrite {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(job.DestPath), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	body, err := d.open(ctx, job.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	// Write to temp file first, then rename. Concurrent fetches of the
	// same destination each get their own temp file.
	out, err := os.CreateTemp(filepath.Dir(job.DestPath), filepath.Base(job.DestPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	tmpPath := out.Name()
	if err := out.Chmod(0644); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("creating file: %w", err)
	}

	_, err = io.Copy(out, body)
	out.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing file: %w", err)
	}

	if err := os.Rename(tmpPath, job.DestPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming file: %w", err)
	}

	return nil
}

func (d *Downloader) open(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		path := location
		if err == nil && u.Scheme == "file" {
			path = u.Path
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", location, err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", location, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", location, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("downloading %s: HTTP %d", location, resp.StatusCode)
	}
	return resp.Body, nil
}
