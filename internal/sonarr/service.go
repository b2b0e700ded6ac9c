package sonarr

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/reelsweep/reelsweep/internal/media"
)

type series struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	TVDBID int64  `json:"tvdbId"`
}

func (s series) tvdbString() string {
	return strconv.FormatInt(s.TVDBID, 10)
}

type episode struct {
	ID            int64 `json:"id"`
	SeasonNumber  int   `json:"seasonNumber"`
	EpisodeNumber int   `json:"episodeNumber"`
	Monitored     bool  `json:"monitored"`
}

// Unmonitor flips monitoring off for the episode matching the item. Returns
// false when Sonarr tracks neither the show nor the episode, which callers
// treat as a successful no-op.
func (c *Client) Unmonitor(ctx context.Context, item media.Item) (bool, error) {
	show, err := c.findSeries(ctx, item)
	if err != nil {
		return false, err
	}
	if show == nil {
		return false, nil
	}

	var episodes []episode
	path := fmt.Sprintf("/api/v3/episode?seriesId=%d", show.ID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &episodes); err != nil {
		return false, err
	}

	for _, ep := range episodes {
		if ep.SeasonNumber != item.SeasonNumber || ep.EpisodeNumber != item.EpisodeNumber {
			continue
		}
		if !ep.Monitored {
			return true, nil
		}

		payload := map[string]interface{}{
			"episodeIds": []int64{ep.ID},
			"monitored":  false,
		}
		if err := c.putJSON(ctx, "/api/v3/episode/monitor", payload); err != nil {
			return false, err
		}

		c.logger.Info().
			Str("show", show.Title).
			Int("season", item.SeasonNumber).
			Int("episode", item.EpisodeNumber).
			Msg("episode unmonitored")
		return true, nil
	}
	return false, nil
}

// findSeries locates the Sonarr series for a catalog item, preferring the
// TVDB ID and falling back to the show title.
func (c *Client) findSeries(ctx context.Context, item media.Item) (*series, error) {
	var shows []series
	if err := c.doJSON(ctx, http.MethodGet, "/api/v3/series", nil, &shows); err != nil {
		return nil, err
	}

	if item.IDs.TVDB != "" {
		for i := range shows {
			if shows[i].tvdbString() == item.IDs.TVDB {
				return &shows[i], nil
			}
		}
	}
	for i := range shows {
		if strings.EqualFold(shows[i].Title, item.ShowTitle) {
			return &shows[i], nil
		}
	}
	return nil, nil
}
