// Package source retrieves replay battle logs, either from the replay
// server or from local files.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ZehenForever/psreplay-stats/internal/logging"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "psreplay-stats/1.0"

	// replays are a few hundred KB at most; anything larger is not a replay
	maxBodyBytes = 16 << 20
)

var (
	// ErrUnavailable is returned when the replay could not be fetched at all.
	ErrUnavailable = errors.New("could not retrieve data")
	ErrNoLog       = errors.New("replay has no battle log")
	ErrInvalidURL  = errors.New("invalid replay url")
)

// Replay is the replay server's JSON document. Only Log is required.
type Replay struct {
	ID         string   `json:"id"`
	Format     string   `json:"format"`
	FormatID   string   `json:"formatid"`
	Players    []string `json:"players"`
	Log        string   `json:"log"`
	UploadTime int64    `json:"uploadtime"`
	Rating     int      `json:"rating"`
}

// ReplayDataURL turns a replay page URL into the URL of its JSON document:
// query and fragment dropped, trailing slash stripped, ".json" appended.
func ReplayDataURL(pageURL string) (string, error) {
	raw := strings.TrimSpace(pageURL)
	raw, _, _ = strings.Cut(raw, "#")
	raw, _, _ = strings.Cut(raw, "?")
	raw = strings.TrimSuffix(raw, "/")

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidURL, "%q: %v", pageURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.Wrapf(ErrInvalidURL, "%q", pageURL)
	}
	if strings.Trim(u.Path, "/") == "" {
		return "", errors.Wrapf(ErrInvalidURL, "%q has no replay path", pageURL)
	}
	if strings.HasSuffix(raw, ".json") {
		return raw, nil
	}
	return raw + ".json", nil
}

type Options struct {
	UserAgent string
	Timeout   time.Duration
	Logger    log.FieldLogger
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

type Client struct {
	http      *http.Client
	userAgent string
	log       log.FieldLogger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	var l log.FieldLogger = opts.Logger
	if l == nil {
		l = logging.Discard()
	}
	return &Client{http: hc, userAgent: opts.UserAgent, log: l}
}

// Fetch downloads the replay behind pageURL. Network failures and non-200
// responses are reported as ErrUnavailable.
func (c *Client) Fetch(ctx context.Context, pageURL string) (*Replay, error) {
	dataURL, err := ReplayDataURL(pageURL)
	if err != nil {
		return nil, err
	}
	logger := c.log.WithField("url", dataURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.WithError(err).Debug("replay fetch failed")
		return nil, errors.Wrapf(ErrUnavailable, "GET %s: %v", dataURL, err)
	}
	defer resp.Body.Close()

	logger.WithFields(log.Fields{
		"status":  resp.StatusCode,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("replay fetched")

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.Wrapf(ErrUnavailable, "GET %s: status %d", dataURL, resp.StatusCode)
	}
	return Decode(io.LimitReader(resp.Body, maxBodyBytes))
}

// Decode reads a replay JSON document.
func Decode(r io.Reader) (*Replay, error) {
	var rep Replay
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, errors.Wrap(err, "decode replay")
	}
	if strings.TrimSpace(rep.Log) == "" {
		return nil, ErrNoLog
	}
	return &rep, nil
}

// LoadFile reads a saved replay: a ".json" document, or a raw battle log in
// any other file.
func LoadFile(path string) (*Replay, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		rep, err := Decode(bytes.NewReader(b))
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", path)
		}
		return rep, nil
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, errors.Wrapf(ErrNoLog, "load %s", path)
	}
	return &Replay{Log: string(b)}, nil
}
