package provider

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"modelfetch/pkg/progress"
)

// DefaultDriveBase serves direct downloads for Google Drive file ids.
const DefaultDriveBase = "https://drive.usercontent.google.com"

var driveHosts = map[string]bool{
	"drive.google.com":             true,
	"docs.google.com":              true,
	"drive.usercontent.google.com": true,
}

// GoogleDrive downloads publicly shared Google Drive files. Large files are
// served behind a virus-scan confirmation page, which is parsed and followed.
// Immutable
type GoogleDrive struct {
	http   *HTTP
	client *http.Client
	base   string
}

// DriveOption configures a GoogleDrive provider.
type DriveOption func(*GoogleDrive)

// WithDriveBase points direct downloads at another host.
func WithDriveBase(base string) DriveOption {
	return func(d *GoogleDrive) { d.base = strings.TrimRight(base, "/") }
}

// NewGoogleDrive creates the Drive provider. Transfers are written through h.
func NewGoogleDrive(h *HTTP, opts ...DriveOption) *GoogleDrive {
	// Confirmation tokens are handed out as cookies.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	client := *h.client
	client.Jar = jar

	d := &GoogleDrive{http: h, client: &client, base: DefaultDriveBase}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *GoogleDrive) Name() string { return "gdrive" }

func (d *GoogleDrive) Accepts(rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !driveHosts[strings.ToLower(u.Hostname())] {
		return false, nil
	}
	if _, err := driveFileID(u); err != nil {
		return false, err
	}
	return true, nil
}

// driveFileID extracts the file id from the link shapes Drive hands out:
// /file/d/<id>/view, /open?id=<id>, /uc?id=<id> and /download?id=<id>.
func driveFileID(u *url.URL) (string, error) {
	if strings.Contains(u.Path, "/folders/") || strings.HasPrefix(u.Path, "/folderview") {
		return "", unsupported("google drive folder links are not supported: %s", u)
	}
	if id := u.Query().Get("id"); id != "" {
		return id, nil
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "d" && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", unsupported("no google drive file id in %s", u)
}

func (d *GoogleDrive) directURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	id, err := driveFileID(u)
	if err != nil {
		return "", err
	}
	q := url.Values{"id": {id}, "export": {"download"}}
	return d.base + "/download?" + q.Encode(), nil
}

// open requests the direct URL and, when Drive answers with its confirmation
// page instead of the file, submits that page's download form.
func (d *GoogleDrive) open(ctx context.Context, rawURL, byteRange string) (*http.Response, error) {
	direct, err := d.directURL(rawURL)
	if err != nil {
		return nil, err
	}
	resp, err := d.do(ctx, direct, byteRange)
	if err != nil {
		return nil, err
	}
	if !isHTML(resp) {
		return resp, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to parse drive page: %w", err)
	}
	next, err := confirmURL(doc, resp.Request.URL)
	if err != nil {
		return nil, err
	}
	slog.Debug("Following drive confirmation", "url", rawURL, "next", next)
	return d.do(ctx, next, byteRange)
}

func (d *GoogleDrive) do(ctx context.Context, target, byteRange string) (*http.Response, error) {
	req, err := d.http.newRequest(ctx, target, byteRange)
	if err != nil {
		return nil, err
	}
	return d.client.Do(req)
}

func isHTML(resp *http.Response) bool {
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return mt == "text/html"
}

// confirmURL finds the link that skips the virus-scan warning. Current pages
// carry a GET form with hidden inputs; older ones a plain anchor.
func confirmURL(doc *goquery.Document, base *url.URL) (string, error) {
	if form := doc.Find("form#download-form").First(); form.Length() > 0 {
		action, _ := form.Attr("action")
		target, err := base.Parse(action)
		if err != nil {
			return "", err
		}
		q := target.Query()
		form.Find("input[type=hidden]").Each(func(_ int, in *goquery.Selection) {
			name, ok := in.Attr("name")
			if !ok || name == "" {
				return
			}
			value, _ := in.Attr("value")
			q.Set(name, value)
		})
		target.RawQuery = q.Encode()
		return target.String(), nil
	}
	if href, ok := doc.Find("a#uc-download-link").First().Attr("href"); ok {
		target, err := base.Parse(href)
		if err != nil {
			return "", err
		}
		return target.String(), nil
	}
	return "", fmt.Errorf("drive returned a page without a download link (quota exceeded or not shared)")
}

func (d *GoogleDrive) ResolveFilename(ctx context.Context, rawURL string) string {
	resp, err := d.open(ctx, rawURL, "bytes=0-1")
	if err != nil {
		slog.Debug("Filename probe failed", "url", rawURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return ""
	}
	return filenameFromDisposition(resp.Header.Get("Content-Disposition"))
}

func (d *GoogleDrive) Download(ctx context.Context, rawURL, destination, label string) *Stream {
	return NewStream(ctx, func(emit Emit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !emit(progress.Snapshot{}) {
			return ctx.Err()
		}

		resp, err := d.open(ctx, rawURL, "")
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &TransferError{URL: rawURL, Err: err}
		}
		defer resp.Body.Close()
		if isHTML(resp) {
			return &TransferError{URL: rawURL, Err: fmt.Errorf("drive kept returning an html page")}
		}
		return d.http.receive(ctx, rawURL, resp, destination, label, emit)
	})
}
