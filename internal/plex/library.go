package plex

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/reelsweep/reelsweep/internal/faults"
	"github.com/reelsweep/reelsweep/internal/media"
)

// Plex wire types. Only the fields the scans read are declared.

type sectionsResponse struct {
	MediaContainer struct {
		Directory []section `json:"Directory"`
	} `json:"MediaContainer"`
}

type section struct {
	Key   string `json:"key"`
	Type  string `json:"type"` // "movie" or "show"
	Title string `json:"title"`
}

type itemsResponse struct {
	MediaContainer struct {
		Metadata []metadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

type metadata struct {
	RatingKey        string       `json:"ratingKey"`
	Title            string       `json:"title"`
	Year             int          `json:"year"`
	GrandparentTitle string       `json:"grandparentTitle"`
	ParentIndex      int          `json:"parentIndex"`
	Index            int          `json:"index"`
	AddedAt          int64        `json:"addedAt"`
	Guid             []guid       `json:"Guid"`
	Media            []mediaEntry `json:"Media"`
}

type guid struct {
	ID string `json:"id"` // e.g. "imdb://tt0113277"
}

type mediaEntry struct {
	ID              int64  `json:"id"`
	Bitrate         int64  `json:"bitrate"`
	Duration        int64  `json:"duration"`
	VideoResolution string `json:"videoResolution"`
	VideoCodec      string `json:"videoCodec"`
	AudioCodec      string `json:"audioCodec"`
	Container       string `json:"container"`
	Part            []part `json:"Part"`
}

type part struct {
	File   string   `json:"file"`
	Size   int64    `json:"size"`
	Stream []stream `json:"Stream"`
}

type stream struct {
	StreamType   int    `json:"streamType"` // 3 = subtitle
	LanguageTag  string `json:"languageTag"`
	LanguageCode string `json:"languageCode"`
}

const subtitleStreamType = 3

// ListItems returns every item in the scoped sections with all of its
// versions. Plex models duplicates as multiple Media entries on one
// metadata record, so no client-side matching is needed.
func (c *Client) ListItems(ctx context.Context, scope media.Scope) ([]media.ItemVersions, error) {
	sections, err := c.sections(ctx, scope)
	if err != nil {
		return nil, err
	}

	var items []media.ItemVersions
	for _, sec := range sections {
		secItems, err := c.sectionItems(ctx, sec)
		if err != nil {
			return nil, fmt.Errorf("listing section %q: %w", sec.Title, err)
		}
		items = append(items, secItems...)
	}

	c.logger.Info().Str("scope", string(scope)).Int("items", len(items)).Msg("catalog listed")
	return items, nil
}

// DeleteVersion removes one media record, and with it the underlying file,
// through the Plex API.
func (c *Client) DeleteVersion(ctx context.Context, itemID string, mediaID int64) error {
	path := fmt.Sprintf("/library/metadata/%s/media/%d", itemID, mediaID)
	resp, err := c.do(ctx, http.MethodDelete, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return classify(resp)
}

// RefreshAll triggers a rescan of every scoped section so the catalog
// reflects removed files.
func (c *Client) RefreshAll(ctx context.Context) error {
	sections, err := c.sections(ctx, media.ScopeAll)
	if err != nil {
		return err
	}
	for _, sec := range sections {
		resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/library/sections/%s/refresh", sec.Key))
		if err != nil {
			return err
		}
		resp.Body.Close()
		if err := classify(resp); err != nil {
			return err
		}
	}
	return nil
}

// sections lists the library sections the scope and the configured library
// names allow. A configured name that matches no section of its type is an
// error, not an empty scan: a silent zero-item result would read as a clean
// library.
func (c *Client) sections(ctx context.Context, scope media.Scope) ([]section, error) {
	var resp sectionsResponse
	if err := c.doJSON(ctx, "/library/sections", &resp); err != nil {
		return nil, err
	}

	movieMatched := c.movieLibrary == ""
	tvMatched := c.tvLibrary == ""

	var out []section
	for _, sec := range resp.MediaContainer.Directory {
		switch sec.Type {
		case "movie":
			if c.movieLibrary != "" && strings.EqualFold(sec.Title, c.movieLibrary) {
				movieMatched = true
			}
			if scope == media.ScopeEpisodes {
				continue
			}
			if c.movieLibrary != "" && !strings.EqualFold(sec.Title, c.movieLibrary) {
				continue
			}
		case "show":
			if c.tvLibrary != "" && strings.EqualFold(sec.Title, c.tvLibrary) {
				tvMatched = true
			}
			if scope == media.ScopeMovies {
				continue
			}
			if c.tvLibrary != "" && !strings.EqualFold(sec.Title, c.tvLibrary) {
				continue
			}
		default:
			continue
		}
		out = append(out, sec)
	}

	if scope != media.ScopeEpisodes && !movieMatched {
		return nil, faults.NotFound(fmt.Sprintf("movie library %q", c.movieLibrary))
	}
	if scope != media.ScopeMovies && !tvMatched {
		return nil, faults.NotFound(fmt.Sprintf("TV library %q", c.tvLibrary))
	}
	return out, nil
}

func (c *Client) sectionItems(ctx context.Context, sec section) ([]media.ItemVersions, error) {
	kind := media.KindMovie
	path := fmt.Sprintf("/library/sections/%s/all?includeGuids=1", sec.Key)
	if sec.Type == "show" {
		// type=4 lists episodes directly instead of show containers.
		kind = media.KindEpisode
		path = fmt.Sprintf("/library/sections/%s/all?type=4&includeGuids=1", sec.Key)
	}

	var resp itemsResponse
	if err := c.doJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	items := make([]media.ItemVersions, 0, len(resp.MediaContainer.Metadata))
	for _, md := range resp.MediaContainer.Metadata {
		item := media.Item{
			ID:    md.RatingKey,
			Title: md.Title,
			Year:  md.Year,
			Kind:  kind,
			IDs:   parseGuids(md.Guid),
		}
		if kind == media.KindEpisode {
			item.ShowTitle = md.GrandparentTitle
			item.SeasonNumber = md.ParentIndex
			item.EpisodeNumber = md.Index
		}

		versions := make([]media.Version, 0, len(md.Media))
		for _, m := range md.Media {
			if len(m.Part) == 0 {
				continue
			}
			p := m.Part[0]
			versions = append(versions, media.Version{
				MediaID:           m.ID,
				Path:              p.File,
				Size:              p.Size,
				Resolution:        media.ParseResolution(m.VideoResolution),
				VideoCodec:        m.VideoCodec,
				AudioCodec:        m.AudioCodec,
				Source:            media.ParseSource(p.File),
				Bitrate:           m.Bitrate,
				Duration:          m.Duration,
				Container:         m.Container,
				AddedAt:           time.Unix(md.AddedAt, 0).UTC(),
				SubtitleLanguages: subtitleLanguages(p.Stream),
			})
		}
		if len(versions) == 0 {
			continue
		}
		items = append(items, media.ItemVersions{Item: item, Versions: versions})
	}
	return items, nil
}

// parseGuids extracts external ids from Plex guid URIs such as
// "imdb://tt0113277" and "tmdb://949".
func parseGuids(guids []guid) media.ExternalIDs {
	var ids media.ExternalIDs
	for _, g := range guids {
		scheme, value, ok := strings.Cut(g.ID, "://")
		if !ok {
			continue
		}
		switch scheme {
		case "imdb":
			ids.IMDB = value
		case "tmdb":
			ids.TMDB = value
		case "tvdb":
			ids.TVDB = value
		}
	}
	return ids
}

func subtitleLanguages(streams []stream) []string {
	var langs []string
	seen := make(map[string]bool)
	for _, s := range streams {
		if s.StreamType != subtitleStreamType {
			continue
		}
		lang := s.LanguageTag
		if lang == "" {
			lang = s.LanguageCode
		}
		if lang == "" {
			continue
		}
		lang = strings.ToLower(lang)
		if !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}
	return langs
}
