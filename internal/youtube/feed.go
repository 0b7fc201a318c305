package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nugget/tubedigest/internal/httpkit"
)

const maxFeed = 1 << 20

// FeedEntry is one video listed in a channel feed.
type FeedEntry struct {
	VideoID   string
	Title     string
	ChannelID string
	Channel   string
	Link      string
	Published time.Time
}

type atomFeed struct {
	XMLName   xml.Name    `xml:"feed"`
	Title     string      `xml:"title"`
	ChannelID string      `xml:"channelId"`
	Entries   []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string     `xml:"id"`
	VideoID   string     `xml:"videoId"`
	ChannelID string     `xml:"channelId"`
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Author    struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Published string `xml:"published"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// FeedClient polls channel Atom feeds.
type FeedClient struct {
	http   *http.Client
	logger *slog.Logger

	// BaseURL is the feed endpoint; the channel id is appended as a query.
	BaseURL string
}

// NewFeedClient creates a FeedClient using httpClient.
func NewFeedClient(httpClient *http.Client, logger *slog.Logger) *FeedClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedClient{
		http:    httpClient,
		logger:  logger.With("component", "feed"),
		BaseURL: "https://www.youtube.com/feeds/videos.xml",
	}
}

// FeedURL returns the public Atom feed URL for a channel.
func FeedURL(channelID string) string {
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
}

// Recent returns the channel's feed entries published at or after since,
// newest first as the feed lists them.
func (c *FeedClient) Recent(ctx context.Context, channelID string, since time.Time) ([]FeedEntry, error) {
	entries, err := c.fetch(ctx, channelID)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Published.Before(since) {
			continue
		}
		out = append(out, e)
	}
	c.logger.Debug("feed checked", "channel_id", channelID, "entries", len(entries), "recent", len(out))
	return out, nil
}

func (c *FeedClient) fetch(ctx context.Context, channelID string) ([]FeedEntry, error) {
	feedURL := c.BaseURL + "?channel_id=" + url.QueryEscape(channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml, application/xml, text/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, maxFeed)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed for %s returned HTTP %d", channelID, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeed))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	return parseFeed(body)
}

// parseFeed decodes a YouTube channel Atom feed. Entries without a
// yt:videoId fall back to the id suffix of "yt:video:<id>".
func parseFeed(data []byte) ([]FeedEntry, error) {
	var af atomFeed
	if err := xml.Unmarshal(data, &af); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if af.XMLName.Local != "feed" {
		return nil, fmt.Errorf("unrecognized feed format (expected Atom)")
	}

	entries := make([]FeedEntry, 0, len(af.Entries))
	for _, e := range af.Entries {
		id := e.VideoID
		if id == "" {
			id = e.ID[strings.LastIndex(e.ID, ":")+1:]
		}
		if id == "" {
			continue
		}
		pub, _ := time.Parse(time.RFC3339, e.Published)
		channelID := e.ChannelID
		if channelID == "" {
			channelID = af.ChannelID
		}
		channel := e.Author.Name
		if channel == "" {
			channel = af.Title
		}
		entries = append(entries, FeedEntry{
			VideoID:   id,
			Title:     e.Title,
			ChannelID: channelID,
			Channel:   channel,
			Link:      bestLink(e.Links),
			Published: pub,
		})
	}
	return entries, nil
}

// bestLink prefers rel="alternate" and falls back to the first link.
func bestLink(links []atomLink) string {
	if len(links) == 0 {
		return ""
	}
	for _, l := range links {
		if l.Rel == "alternate" || l.Rel == "" {
			return l.Href
		}
	}
	return links[0].Href
}

var (
	channelIDRe   = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{22}$`)
	pageChannelRe = regexp.MustCompile(`"channelId"\s*:\s*"(UC[a-zA-Z0-9_-]+)"`)
)

func isYouTubeHost(host string) bool {
	switch strings.ToLower(host) {
	case "youtube.com", "www.youtube.com", "m.youtube.com":
		return true
	}
	return false
}

// ResolveChannelID turns a channel reference into a channel id. It
// accepts a bare UC id, a /channel/ URL, a feed URL, an @handle or an
// @handle URL. Handles are resolved by reading the channel page.
func (c *FeedClient) ResolveChannelID(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if channelIDRe.MatchString(ref) {
		return ref, nil
	}

	var pageURL string
	switch {
	case strings.HasPrefix(ref, "@"):
		pageURL = "https://www.youtube.com/" + ref
	default:
		u, err := url.Parse(ref)
		if err != nil || !isYouTubeHost(u.Hostname()) {
			return "", fmt.Errorf("not a YouTube channel reference: %q", ref)
		}
		if id := u.Query().Get("channel_id"); id != "" {
			return id, nil
		}
		if rest, ok := strings.CutPrefix(u.Path, "/channel/"); ok {
			return strings.Split(rest, "/")[0], nil
		}
		if !strings.HasPrefix(u.Path, "/@") {
			return "", fmt.Errorf("not a YouTube channel reference: %q", ref)
		}
		pageURL = ref
	}
	return c.channelIDFromPage(ctx, pageURL)
}

func (c *FeedClient) channelIDFromPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch channel page: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, maxFeed)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("channel page returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", fmt.Errorf("read channel page: %w", err)
	}
	return channelIDFromHTML(string(body), pageURL)
}

// channelIDFromHTML finds the channel id on a channel page: the
// canonical link or channelId meta tag first, then the page's embedded
// player JSON.
func channelIDFromHTML(page, pageURL string) (string, error) {
	if doc, err := html.Parse(strings.NewReader(page)); err == nil {
		if id := channelIDFromNode(doc); id != "" {
			return id, nil
		}
	}
	if m := pageChannelRe.FindStringSubmatch(page); len(m) == 2 {
		return m[1], nil
	}
	return "", fmt.Errorf("could not find a channel id on %s", pageURL)
}

func channelIDFromNode(n *html.Node) string {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Link:
			if attr(n, "rel") == "canonical" {
				if id := channelIDFromURL(attr(n, "href")); id != "" {
					return id
				}
			}
		case atom.Meta:
			if attr(n, "itemprop") == "channelId" || attr(n, "itemprop") == "identifier" {
				if id := attr(n, "content"); channelIDRe.MatchString(id) {
					return id
				}
			}
			if attr(n, "property") == "og:url" {
				if id := channelIDFromURL(attr(n, "content")); id != "" {
					return id
				}
			}
		case atom.Script, atom.Style:
			return ""
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if id := channelIDFromNode(c); id != "" {
			return id
		}
	}
	return ""
}

func channelIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !isYouTubeHost(u.Hostname()) {
		return ""
	}
	rest, ok := strings.CutPrefix(u.Path, "/channel/")
	if !ok {
		return ""
	}
	return strings.Split(rest, "/")[0]
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
