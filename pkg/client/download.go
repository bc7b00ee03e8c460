package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DownloadRequest is the form the repository requires before it hands out
// download links.
type DownloadRequest struct {
	UserID      string   `json:"user_id"`
	UserEmail   string   `json:"user_email"`
	Product     string   `json:"data_product"`
	Variant     string   `json:"data_variant,omitempty"`
	Policy      string   `json:"data_policy"`
	SiteIDs     []string `json:"site_ids"`
	IntendedUse string   `json:"intended_use"`
	Description string   `json:"description"`
	AgreePolicy bool     `json:"agree_policy"`
}

func (r DownloadRequest) validate() error {
	var errs []error
	if len(r.SiteIDs) == 0 {
		errs = append(errs, errors.New("at least one site id is required"))
	}
	if r.UserID == "" || r.UserEmail == "" {
		errs = append(errs, errors.New("user id and email are required"))
	}
	if r.IntendedUse == "" {
		errs = append(errs, errors.New("intended use is required"))
	}
	if !r.AgreePolicy {
		errs = append(errs, fmt.Errorf("the %s data policy must be agreed to", r.Policy))
	}
	return errors.Join(errs...)
}

// DownloadURL is a link to one site's archive.
type DownloadURL struct {
	SiteID string `json:"site_id"`
	URL    string `json:"url"`
}

// DownloadManifest is the repository's answer to a DownloadRequest.
type DownloadManifest struct {
	RequestID string        `json:"request_id"`
	URLs      []DownloadURL `json:"data_urls"`
}

// RequestDownload submits req and returns the download links. Each request
// is tagged with a fresh request id for correlation in logs.
func (c *Client) RequestDownload(ctx context.Context, req DownloadRequest) (*DownloadManifest, error) {
	if req.Product == "" {
		req.Product = ProductBaseBADM
	}
	if req.Policy == "" {
		req.Policy = PolicyCCBY4
	}
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid download request: %w", err)
	}

	manifest := &DownloadManifest{}
	if err := c.postJSON(ctx, c.cfg.DownloadURL, req, manifest); err != nil {
		return nil, fmt.Errorf("requesting download: %w", err)
	}
	manifest.RequestID = uuid.NewString()

	requested := make(map[string]bool, len(req.SiteIDs))
	for _, s := range req.SiteIDs {
		requested[s] = true
	}
	for _, u := range manifest.URLs {
		delete(requested, u.SiteID)
	}
	for s := range requested {
		c.logger.Warnw("no download link returned for site", "request_id", manifest.RequestID, "site_id", s)
	}

	c.logger.Infow("download request accepted",
		"request_id", manifest.RequestID,
		"product", req.Product,
		"links", len(manifest.URLs))
	return manifest, nil
}

// DownloadFiles fetches every link in m into dir, at most workers at a time,
// and returns the written paths in manifest order.
func (c *Client) DownloadFiles(ctx context.Context, m *DownloadManifest, dir string, workers int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}
	if workers < 1 {
		workers = 1
	}

	// Every destination is resolved before the first request so two links
	// can never race onto the same file.
	paths := make([]string, len(m.URLs))
	owner := make(map[string]string, len(m.URLs))
	for i, link := range m.URLs {
		name, err := fileName(link.URL)
		if err != nil {
			return nil, fmt.Errorf("link for %s: %w", link.SiteID, err)
		}
		if prev, dup := owner[name]; dup {
			return nil, fmt.Errorf("links for %s and %s both download to %s", prev, link.SiteID, name)
		}
		owner[name] = link.SiteID
		paths[i] = filepath.Join(dir, name)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, link := range m.URLs {
		i, link := i, link
		g.Go(func() error {
			if err := c.downloadFile(gctx, link.URL, paths[i]); err != nil {
				return fmt.Errorf("downloading %s: %w", link.SiteID, err)
			}
			c.logger.Infow("downloaded file", "request_id", m.RequestID, "site_id", link.SiteID, "path", paths[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func fileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("cannot derive a file name from %s", rawURL)
	}
	return name, nil
}

func (c *Client) downloadFile(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, URL: rawURL, Body: string(body)}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
