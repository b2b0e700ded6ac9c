package radarr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/reelsweep/reelsweep/internal/media"
)

// Unmonitor flips monitoring off for the movie matching the item. Returns
// false when Radarr does not track the movie at all, which callers treat as
// a successful no-op. Already-unmonitored movies are left alone.
func (c *Client) Unmonitor(ctx context.Context, item media.Item) (bool, error) {
	movie, err := c.findMovie(ctx, item)
	if err != nil {
		return false, err
	}
	if movie == nil {
		return false, nil
	}

	if monitored, _ := movie["monitored"].(bool); !monitored {
		return true, nil
	}

	// Radarr's update endpoint replaces the whole document, so the fetched
	// object is sent back with only the monitored flag changed.
	movie["monitored"] = false
	id, ok := movie["id"].(float64)
	if !ok {
		return false, fmt.Errorf("radarr movie %q has no id", item.Title)
	}
	if err := c.putJSON(ctx, fmt.Sprintf("/api/v3/movie/%d", int64(id)), movie); err != nil {
		return false, err
	}

	c.logger.Info().Str("title", item.Title).Int("year", item.Year).Msg("movie unmonitored")
	return true, nil
}

// findMovie locates the Radarr movie for a catalog item, preferring the
// TMDB ID and falling back to IMDB ID, then title and year.
func (c *Client) findMovie(ctx context.Context, item media.Item) (map[string]interface{}, error) {
	if item.IDs.TMDB != "" {
		var movies []map[string]interface{}
		path := "/api/v3/movie?tmdbId=" + url.QueryEscape(item.IDs.TMDB)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &movies); err != nil {
			return nil, err
		}
		if len(movies) > 0 {
			return movies[0], nil
		}
	}

	var movies []map[string]interface{}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v3/movie", nil, &movies); err != nil {
		return nil, err
	}

	for _, m := range movies {
		if item.IDs.IMDB != "" {
			if imdb, _ := m["imdbId"].(string); imdb == item.IDs.IMDB {
				return m, nil
			}
		}
	}
	for _, m := range movies {
		title, _ := m["title"].(string)
		year, _ := m["year"].(float64)
		if strings.EqualFold(title, item.Title) && int(year) == item.Year {
			return m, nil
		}
	}
	return nil, nil
}
