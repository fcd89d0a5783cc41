package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gitledger/gitledger/internal/buildinfo"
)

const (
	releaseFeedURL      = "https://api.github.com/repos/gitledger/gitledger/releases/latest"
	releasePageURL      = "https://github.com/gitledger/gitledger/releases/latest"
	releaseCacheTTL     = time.Hour
	releaseFetchTimeout = 10 * time.Second
)

// releaseInfo is one upstream release lookup.
type releaseInfo struct {
	Version string
	URL     string
}

// releaseCache memoizes the latest published release so the console does not
// hammer the GitHub API. Only successful lookups are cached.
type releaseCache struct {
	mu      sync.Mutex
	info    releaseInfo
	staleAt time.Time
}

func (c *releaseCache) lookup() (releaseInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleAt.IsZero() || time.Now().After(c.staleAt) {
		return releaseInfo{}, false
	}
	return c.info, true
}

func (c *releaseCache) store(info releaseInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = info
	c.staleAt = time.Now().Add(releaseCacheTTL)
}

var latestRelease releaseCache

// VersionHandler reports the running build and available updates.
type VersionHandler struct{}

// NewVersionHandler constructs a VersionHandler.
func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

// GetVersion returns the running version and whether a newer release exists.
func (h *VersionHandler) GetVersion(c *gin.Context) {
	out := gin.H{
		"current_version": buildinfo.Version,
		"commit":          buildinfo.Commit,
		"build_date":      buildinfo.BuildDate,
		"has_update":      false,
	}

	info, cached := latestRelease.lookup()
	if !cached {
		fetched, errFetch := fetchLatestRelease(c.Request.Context())
		if errFetch != nil {
			out["check_error"] = errFetch.Error()
			c.JSON(http.StatusOK, out)
			return
		}
		latestRelease.store(fetched)
		info = fetched
	}

	out["latest_version"] = info.Version
	out["release_url"] = info.URL
	out["has_update"] = releaseIsNewer(buildinfo.Version, info.Version)
	c.JSON(http.StatusOK, out)
}

// fetchLatestRelease asks the GitHub API for the newest published release.
func fetchLatestRelease(ctx context.Context) (releaseInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, releaseFetchTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, releaseFeedURL, nil)
	if errReq != nil {
		return releaseInfo{}, errReq
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "gitledger")

	resp, errDo := http.DefaultClient.Do(req)
	if errDo != nil {
		return releaseInfo{}, errDo
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return releaseInfo{}, fmt.Errorf("release feed returned status %d", resp.StatusCode)
	}

	var payload struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	if errDecode := json.NewDecoder(resp.Body).Decode(&payload); errDecode != nil {
		return releaseInfo{}, errDecode
	}
	info := releaseInfo{Version: payload.TagName, URL: payload.HTMLURL}
	if info.URL == "" {
		info.URL = releasePageURL
	}
	return info, nil
}

// releaseIsNewer reports whether latest is a strictly newer release than
// current. Dev builds count as behind any tagged release.
func releaseIsNewer(current, latest string) bool {
	current = strings.TrimPrefix(strings.TrimSpace(current), "v")
	latest = strings.TrimPrefix(strings.TrimSpace(latest), "v")
	if latest == "" || latest == "dev" {
		return false
	}
	if current == "" || current == "dev" {
		return true
	}
	return semverLess(current, latest)
}

// semverLess compares dotted numeric versions segment by segment.
func semverLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		av := versionSegment(as, i)
		bv := versionSegment(bs, i)
		if av != bv {
			return av < bv
		}
	}
	return false
}

// versionSegment reads the numeric segment at i, treating absent or
// non-numeric segments as zero.
func versionSegment(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil {
		return 0
	}
	return n
}
