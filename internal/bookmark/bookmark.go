package bookmark

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoBookmark is returned when nothing is saved under a key.
	ErrNoBookmark = errors.New("no bookmark saved")

	// ErrSelectionNotResumable is returned when a bookmark of a selection
	// is resumed without its session still loaded.
	ErrSelectionNotResumable = errors.New("selection bookmarks can only be resumed while the selection is still loaded")

	// ErrNoPageKey is returned when neither a page nor a tab key is known.
	ErrNoPageKey = errors.New("no page to bookmark")

	// ErrResumeTimeout is returned when the resumed chunk never became
	// seekable.
	ErrResumeTimeout = errors.New("timed out waiting for audio to resume")
)

// Bookmark is a saved listening position.
type Bookmark struct {
	Key             string    `json:"key"`
	TabKey          string    `json:"tab_key,omitempty"`
	Source          string    `json:"source"`
	Title           string    `json:"title"`
	ChunkIndex      int       `json:"chunk_index"`
	ChapterIndex    int       `json:"chapter_index"`
	PositionSeconds float64   `json:"position_seconds"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	Speed           float64   `json:"speed"`
	SavedAt         time.Time `json:"saved_at"`
}

// Position is the offset into the bookmarked chunk.
func (b Bookmark) Position() time.Duration {
	return time.Duration(b.PositionSeconds * float64(time.Second))
}

// Store persists bookmarks. Lookups match either the page key or the tab
// key.
type Store interface {
	SaveBookmark(ctx context.Context, b Bookmark) error
	LoadBookmark(ctx context.Context, key string) (Bookmark, error)
	ListBookmarks(ctx context.Context) ([]Bookmark, error)
	DeleteBookmark(ctx context.Context, key string) error
}

// NewTabKey returns a transient key for text that has no page identity.
func NewTabKey() string {
	return "tab:" + uuid.NewString()
}

// trackingParams are dropped from page URLs.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"mc_cid": true,
	"mc_eid": true,
}

// NormalizePageURL reduces raw to a stable page identity: scheme and host
// lowercased, fragment, tracking parameters and trailing slash removed.
// Tab keys pass through unchanged.
func NormalizePageURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoPageKey
	}
	if strings.HasPrefix(raw, "tab:") {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		return "", errors.New("page url has no scheme: " + raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") || trackingParams[strings.ToLower(k)] {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}
