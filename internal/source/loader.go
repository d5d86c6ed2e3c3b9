// Package source reads feed documents from a URL, a file or stdin and hands
// them over as UTF-8 text.
package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"feedmap/internal/metrics"
)

// ErrTooLarge is returned when a document exceeds Options.MaxBytes.
var ErrTooLarge = errors.Base("feed exceeds size limit")

// Input describes where a feed comes from. URL wins over Path, Path over
// Stdin.
type Input struct {
	URL   string
	Path  string
	Stdin io.Reader
}

// Name returns a short label for logs and export names.
func (in Input) Name() string {
	switch {
	case strings.TrimSpace(in.URL) != "":
		return in.URL
	case in.Path != "":
		return in.Path
	default:
		return "stdin"
	}
}

// Options controls fetching.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// MaxBytes caps the size of a document. Zero means no limit.
	MaxBytes int64
	// Discover follows the feed link of an HTML page once.
	Discover bool
}

// Loader fetches or reads feeds with a consistent timeout and size policy.
type Loader struct {
	client *http.Client
	opts   Options
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used.
func NewLoader(client *http.Client, opts Options) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "feedmap/1.0"
	}
	return &Loader{client: client, opts: opts}
}

// Load returns the document for input, decoded to UTF-8 with its XML
// declaration rewritten accordingly.
//
// On non-2xx HTTP responses, Load returns an error that includes the status
// code and up to 4KB of the response body.
func (l *Loader) Load(ctx context.Context, input Input) (string, error) {
	raw, contentType, err := l.read(ctx, input)
	if err != nil {
		return "", err
	}
	text, err := ToUTF8(raw, contentType)
	if err != nil {
		return "", errors.Errorf("%s: %w", input.Name(), err)
	}
	return text, nil
}

func (l *Loader) read(ctx context.Context, input Input) ([]byte, string, error) {
	if u := strings.TrimSpace(input.URL); u != "" {
		return l.fetchFeed(ctx, u)
	}
	if input.Path != "" {
		f, err := os.Open(input.Path)
		if err != nil {
			return nil, "", errors.Errorf("open feed: %w", err)
		}
		defer f.Close()
		b, err := l.readLimited(f)
		if err != nil {
			return nil, "", errors.Errorf("read %s: %w", input.Path, err)
		}
		return b, "", nil
	}
	if input.Stdin == nil {
		return nil, "", nil
	}
	b, err := l.readLimited(input.Stdin)
	if err != nil {
		return nil, "", errors.Errorf("read stdin: %w", err)
	}
	return b, "", nil
}

// fetchFeed GETs rawURL and, when discovery is on and the answer is an HTML
// page, follows its first feed link.
func (l *Loader) fetchFeed(ctx context.Context, rawURL string) ([]byte, string, error) {
	body, contentType, err := l.fetch(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	if !l.opts.Discover || !looksLikeHTML(contentType, body) {
		return body, contentType, nil
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return body, contentType, nil
	}
	link, ok := DiscoverFeedURL(body, base)
	if !ok {
		return body, contentType, nil
	}
	zerolog.Ctx(ctx).Debug().Str("page", rawURL).Str("feed", link).Msg("feed link discovered")
	return l.fetch(ctx, link)
}

func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", errors.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", l.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.8")

	start := time.Now()
	resp, err := l.client.Do(req)
	reqDur := time.Since(start)
	if err != nil {
		metrics.RecordHTTP(0, err, reqDur, 0, 0)
		return nil, "", errors.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.RecordHTTP(resp.StatusCode, nil, reqDur, time.Since(start)-reqDur, int64(len(snippet)))
		return nil, "", errors.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	b, err := l.readLimited(resp.Body)
	metrics.RecordHTTP(resp.StatusCode, err, reqDur, time.Since(start)-reqDur, int64(len(b)))
	if err != nil {
		return nil, "", errors.Errorf("read body: %w", err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Str("size", humanize.Bytes(uint64(len(b)))).
		Dur("elapsed", time.Since(start)).
		Msg("feed fetched")

	return b, resp.Header.Get("Content-Type"), nil
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	if l.opts.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, l.opts.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > l.opts.MaxBytes {
		return nil, errors.Errorf("%w: limit is %s", ErrTooLarge, humanize.IBytes(uint64(l.opts.MaxBytes)))
	}
	return b, nil
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/html") {
		return true
	}
	head := bytes.TrimLeft(body, " \t\r\n\ufeff")
	if len(head) > 64 {
		head = head[:64]
	}
	lower := bytes.ToLower(head)
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}
