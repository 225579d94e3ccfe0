// Package karamoe is a minimal client for the kara.moe catalogue: look up
// a song record, download its subtitle and media files. Only the fields
// the converter needs are decoded.
package karamoe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public kara.moe instance.
	DefaultBaseURL = "https://kara.moe"

	// DefaultTimeout bounds a single request. Media downloads can be
	// hundreds of megabytes, so it is generous.
	DefaultTimeout = 10 * time.Minute
)

// ErrNotFound reports that the catalogue has no record for the ID.
var ErrNotFound = errors.New("kara not found")

// songURLPattern matches a kara.moe song page URL. The last path segment
// is the song's UUID, the one before it a display slug.
var songURLPattern = regexp.MustCompile(`^https://kara\.moe/kara/[\w-]+/([\w-]+)/?$`)

// SongID extracts the song identifier from a kara.moe page URL.
func SongID(url string) (string, error) {
	m := songURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", fmt.Errorf("not a kara.moe song URL: %q", url)
	}
	return m[1], nil
}

// Client talks to a kara.moe instance.
type Client struct {
	http    *http.Client
	baseURL string
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at a different instance. Used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a kara.moe client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultTimeout}
	}
	return c
}

// Song is the subset of a kara.moe record the converter needs.
type Song struct {
	ID string `json:"id"`

	// Title in the record's default language.
	Title string `json:"title"`

	// Artist is the singers joined with " & ".
	Artist string `json:"artist"`

	// Authors is the karaoke mappers joined with " & ". Goes into the
	// CREATOR header tag.
	Authors string `json:"authors"`

	// Language is the English name of the song's first language.
	Language string `json:"language"`

	// SubFile and MediaFile are catalogue filenames, fetchable with
	// Download.
	SubFile   string `json:"sub_file"`
	MediaFile string `json:"media_file"`
}

// songRecord mirrors the fields of the /api/karas/{id} response we read.
type songRecord struct {
	Titles        map[string]string `json:"titles"`
	TitlesDefault string            `json:"titles_default_language"`
	SubFile       string            `json:"subfile"`
	MediaFile     string            `json:"mediafile"`
	Langs         []struct {
		I18n map[string]string `json:"i18n"`
	} `json:"langs"`
	Singers []named `json:"singers"`
	Authors []named `json:"authors"`
}

type named struct {
	Name string `json:"name"`
}

// Song fetches the catalogue record for a song ID.
func (c *Client) Song(ctx context.Context, id string) (*Song, error) {
	url := c.baseURL + "/api/karas/" + id

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch kara %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch kara %s: unexpected status %s", id, resp.Status)
	}

	var rec songRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode kara %s: %w", id, err)
	}

	song := &Song{
		ID:        id,
		Title:     rec.title(),
		Artist:    joinNames(rec.Singers),
		Authors:   joinNames(rec.Authors),
		SubFile:   rec.SubFile,
		MediaFile: rec.MediaFile,
	}
	if len(rec.Langs) > 0 {
		song.Language = rec.Langs[0].I18n["eng"]
	}
	return song, nil
}

func (r songRecord) title() string {
	if t := r.Titles[r.TitlesDefault]; t != "" {
		return t
	}
	return r.Titles["eng"]
}

func joinNames(people []named) string {
	names := make([]string, 0, len(people))
	for _, p := range people {
		names = append(names, p.Name)
	}
	return strings.Join(names, " & ")
}

// Download fetches a catalogue file into dir and returns the written
// path. Subtitle files live under downloads/lyrics, everything else under
// downloads/medias; the catalogue routes purely on the extension.
func (c *Client) Download(ctx context.Context, filename, dir string) (string, error) {
	name := filepath.Base(filename)

	endpoint := "/downloads/medias/"
	if strings.EqualFold(filepath.Ext(name), ".ass") {
		endpoint = "/downloads/lyrics/"
	}
	url := c.baseURL + endpoint + name

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("download %s: unexpected status %s", name, resp.Status)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
