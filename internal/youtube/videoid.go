// Package youtube talks to YouTube: video ids, metadata through the Data
// API, caption tracks from the watch page, and channel Atom feeds.
package youtube

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidVideo is returned when input is neither a YouTube URL nor a
// bare video id.
var ErrInvalidVideo = errors.New("not a YouTube video URL or id")

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/shorts/|youtube\.com/live/)([^&\n?#/]+)`),
	regexp.MustCompile(`youtube\.com/watch\?.*v=([^&\n?#]+)`),
}

var bareIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID pulls the video id out of a watch, short link, embed,
// shorts or live URL.
func ExtractVideoID(rawURL string) (string, bool) {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(rawURL); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

// ResolveVideoID accepts a URL or a bare 11-character id.
func ResolveVideoID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if id, ok := ExtractVideoID(s); ok {
		return id, nil
	}
	if bareIDRe.MatchString(s) {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVideo, s)
}

// WatchURL returns the canonical watch page URL for id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(id)
}
