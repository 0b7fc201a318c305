package youtube

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/nugget/tubedigest/internal/httpkit"
	"github.com/nugget/tubedigest/internal/transcript"
)

// ErrNoCaptions is returned when a video has no fetchable caption track.
var ErrNoCaptions = errors.New("no captions available")

// playerResponseMarker precedes the player JSON in watch page HTML.
const playerResponseMarker = "ytInitialPlayerResponse = "

const (
	maxWatchPage = 6 << 20
	maxTimedText = 2 << 20
)

type playerResponse struct {
	Captions *struct {
		Tracklist struct {
			CaptionTracks []Track `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

// Track is one caption track listed on the watch page.
type Track struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" for auto-generated
}

// Generated reports whether the track was produced by speech recognition.
func (t Track) Generated() bool { return t.Kind == "asr" }

type timedText struct {
	Lines []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

// CaptionClient fetches caption fragments by scraping the watch page
// for its track list.
type CaptionClient struct {
	http   *http.Client
	logger *slog.Logger

	// WatchBaseURL is prefixed to the video id to form the watch page URL.
	WatchBaseURL string
}

// NewCaptionClient creates a CaptionClient using httpClient.
func NewCaptionClient(httpClient *http.Client, logger *slog.Logger) *CaptionClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptionClient{
		http:         httpClient,
		logger:       logger.With("component", "captions"),
		WatchBaseURL: "https://www.youtube.com/watch?v=",
	}
}

// Fetch returns the caption fragments of the best track for langs, in
// caption order, along with the chosen track.
func (c *CaptionClient) Fetch(ctx context.Context, videoID string, langs []string) ([]transcript.Fragment, Track, error) {
	tracks, err := c.tracks(ctx, videoID)
	if err != nil {
		return nil, Track{}, err
	}
	track, ok := PickTrack(tracks, langs)
	if !ok {
		return nil, Track{}, fmt.Errorf("%w: every track needs a browser token", ErrNoCaptions)
	}
	c.logger.Debug("caption track selected",
		"video_id", videoID,
		"language", track.LanguageCode,
		"generated", track.Generated(),
	)

	frags, err := c.timedText(ctx, track.BaseURL)
	if err != nil {
		return nil, Track{}, err
	}
	if len(frags) == 0 {
		return nil, Track{}, fmt.Errorf("%w: track %s is empty", ErrNoCaptions, track.LanguageCode)
	}
	return frags, track, nil
}

func (c *CaptionClient) tracks(ctx context.Context, videoID string) ([]Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.WatchBaseURL+videoID, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch watch page: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, maxWatchPage)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watch page returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWatchPage))
	if err != nil {
		return nil, fmt.Errorf("read watch page: %w", err)
	}

	return parseTracks(body)
}

func parseTracks(page []byte) ([]Track, error) {
	idx := strings.Index(string(page), playerResponseMarker)
	if idx < 0 {
		return nil, fmt.Errorf("%w: player response not found in watch page", ErrNoCaptions)
	}
	raw := extractJSON(page[idx+len(playerResponseMarker):])
	if raw == nil {
		return nil, errors.New("player response JSON is truncated")
	}

	var pr playerResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}
	if pr.Captions == nil || len(pr.Captions.Tracklist.CaptionTracks) == 0 {
		if pr.PlayabilityStatus != nil && pr.PlayabilityStatus.Reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoCaptions, pr.PlayabilityStatus.Reason)
		}
		return nil, ErrNoCaptions
	}
	return pr.Captions.Tracklist.CaptionTracks, nil
}

// extractJSON returns the JSON object that starts at b[0], tracking
// brace depth outside of strings.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr, escaped := false, false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

// needsPoToken reports whether a track URL only works from a browser.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// PickTrack chooses a caption track: a manual track in the first
// preferred language that has one, then a generated track in a preferred
// language, then the first usable track. Tracks that need a browser
// token are never chosen.
func PickTrack(tracks []Track, langs []string) (Track, bool) {
	usable := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return Track{}, false
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && !t.Generated() {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	return usable[0], true
}

func (c *CaptionClient) timedText(ctx context.Context, trackURL string) ([]transcript.Fragment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, maxTimedText)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("timedtext returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTimedText))
	if err != nil {
		return nil, fmt.Errorf("read timedtext: %w", err)
	}
	return parseTimedText(body)
}

func parseTimedText(body []byte) ([]transcript.Fragment, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	frags := make([]transcript.Fragment, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := cleanCaption(line.Text)
		if text == "" {
			continue
		}
		start, _ := strconv.ParseFloat(line.Start, 64)
		dur, _ := strconv.ParseFloat(line.Dur, 64)
		frags = append(frags, transcript.Fragment{Start: start, Duration: dur, Text: text})
	}
	return frags, nil
}

// cleanCaption strips markup such as <font> from caption text and
// unescapes the entities YouTube double-encodes.
func cleanCaption(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}
