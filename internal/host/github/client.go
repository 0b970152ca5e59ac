package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/3leaps/swissfetch/internal/fault"
	"github.com/3leaps/swissfetch/internal/model"
)

const maxErrorBody = 512

// Client talks to the GitHub releases API. It is safe for sequential use only.
type Client struct {
	http    *req.Client
	apiBase string
	timeout time.Duration
}

// Options configures NewClient.
type Options struct {
	APIBase   string
	UserAgent string
	// Timeout bounds each API request. Downloads are bounded only by their
	// context, so a slow but progressing transfer completes.
	Timeout time.Duration
}

func NewClient(opts Options) *Client {
	c := req.C().
		SetUserAgent(opts.UserAgent).
		SetCommonHeader("Accept", "application/vnd.github+json").
		SetTimeout(0)
	return &Client{
		http:    c,
		apiBase: strings.TrimRight(opts.APIBase, "/"),
		timeout: opts.Timeout,
	}
}

func UserAgent(product, version string) string {
	return fmt.Sprintf("%s/%s", product, version)
}

// Latest returns the release GitHub marks as latest for repo.
func (c *Client) Latest(ctx context.Context, repo string) (*model.Release, error) {
	var rel model.Release
	if err := c.getJSON(ctx, c.repoURL(repo, "releases/latest"), &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// ByTag returns the release with the given tag.
func (c *Client) ByTag(ctx context.Context, repo, tag string) (*model.Release, error) {
	var rel model.Release
	if err := c.getJSON(ctx, c.repoURL(repo, "releases/tags/"+url.PathEscape(tag)), &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// List returns the first page of releases for repo, newest first as served.
func (c *Client) List(ctx context.Context, repo string) ([]model.Release, error) {
	var rels []model.Release
	if err := c.getJSON(ctx, c.repoURL(repo, "releases?per_page=100"), &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

// Download streams src into the file at dest, creating parent directories.
// A partial file is removed on failure.
func (c *Client) Download(ctx context.Context, src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrap(err, "create download dir")
	}

	tmp := dest + ".part"
	resp, err := c.http.R().
		SetContext(ctx).
		SetOutputFile(tmp).
		Get(src)
	if err != nil {
		_ = os.Remove(tmp)
		return fault.Wrap(fault.KindNetwork, err, "download %s", src)
	}
	if resp.IsErrorState() {
		_ = os.Remove(tmp)
		return fault.New(fault.KindNetwork, "download %s: status %d", src, resp.StatusCode)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "finalize download")
	}
	return nil
}

func (c *Client) repoURL(repo, suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s", c.apiBase, repo, suffix)
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.http.R().SetContext(ctx).Get(u)
	if err != nil {
		return fault.Wrap(fault.KindNetwork, err, "GET %s", u)
	}
	body, err := resp.ToBytes()
	if err != nil {
		return fault.Wrap(fault.KindNetwork, err, "read %s", u)
	}
	if resp.IsErrorState() {
		return fault.New(fault.KindNetwork, "GET %s: status %d: %s", u, resp.StatusCode, apiMessage(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fault.Wrap(fault.KindNetwork, err, "decode %s", u)
	}
	return nil
}

// apiMessage extracts GitHub's error "message" field, falling back to the
// trimmed body.
func apiMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	clean := strings.TrimSpace(string(body))
	if clean == "" {
		return "empty response"
	}
	if len(clean) > maxErrorBody {
		return clean[:maxErrorBody] + "..."
	}
	return clean
}
