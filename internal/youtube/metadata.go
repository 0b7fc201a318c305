package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/nugget/tubedigest/internal/httpkit"
)

// ErrVideoNotFound is returned when the Data API has no such video.
var ErrVideoNotFound = errors.New("video not found")

// Video is the metadata kept for a note.
type Video struct {
	ID          string        `json:"video_id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Channel     string        `json:"channel"`
	ChannelID   string        `json:"channel_id,omitempty"`
	PublishedAt string        `json:"published_at"`
	Duration    time.Duration `json:"-"`
	RawDuration string        `json:"duration"`
	Thumbnail   string        `json:"thumbnail"`
}

// MetadataClient reads video metadata from the YouTube Data API v3.
type MetadataClient struct {
	svc    *ytapi.Service
	apiKey string
	logger *slog.Logger
}

// NewMetadataClient creates a Data API client that sends requests
// through httpClient. Extra options (an endpoint override, say) are
// passed to the service constructor.
func NewMetadataClient(ctx context.Context, apiKey string, httpClient *http.Client, logger *slog.Logger, opts ...option.ClientOption) (*MetadataClient, error) {
	if apiKey == "" {
		return nil, errors.New("youtube: api_key is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = httpkit.NewClient()
	}

	// The key travels as a query parameter on each call because a custom
	// HTTP client disables the library's own credential handling.
	all := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := ytapi.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &MetadataClient{
		svc:    svc,
		apiKey: apiKey,
		logger: logger.With("component", "youtube"),
	}, nil
}

// Video fetches snippet and content details for one video.
func (c *MetadataClient) Video(ctx context.Context, id string) (*Video, error) {
	resp, err := c.svc.Videos.List([]string{"snippet", "contentDetails"}).
		Id(id).
		Context(ctx).
		Do(googleapi.QueryParameter("key", c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("youtube api: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, id)
	}

	v := videoFromItem(resp.Items[0])
	c.logger.Debug("video metadata fetched", "video_id", id, "title", v.Title, "duration", v.Duration)
	return v, nil
}

func videoFromItem(item *ytapi.Video) *Video {
	v := &Video{ID: item.Id}
	if s := item.Snippet; s != nil {
		v.Title = s.Title
		v.Description = s.Description
		v.Channel = s.ChannelTitle
		v.ChannelID = s.ChannelId
		v.PublishedAt = s.PublishedAt
		v.Thumbnail = bestThumbnail(s.Thumbnails)
	}
	if cd := item.ContentDetails; cd != nil {
		v.RawDuration = cd.Duration
		v.Duration = ParseDuration(cd.Duration)
	}
	return v
}

// bestThumbnail prefers the high resolution image.
func bestThumbnail(t *ytapi.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*ytapi.Thumbnail{t.High, t.Standard, t.Maxres, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
