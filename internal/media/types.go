// Package media defines the catalog snapshot types shared by the dedup and
// subtitle engines. Everything here is an immutable value captured at scan
// time; nothing persists across runs.
package media

import (
	"fmt"
	"strings"
	"time"
)

// Kind represents the type of a catalog item.
type Kind string

const (
	KindMovie   Kind = "movie"
	KindEpisode Kind = "episode"
)

// Scope selects which libraries a scan covers.
type Scope string

const (
	ScopeMovies   Scope = "movies"
	ScopeEpisodes Scope = "episodes"
	ScopeAll      Scope = "all"
)

// ParseScope validates a scope string. Empty means everything.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeMovies, ScopeEpisodes, ScopeAll:
		return Scope(s), nil
	case "":
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// Resolution is an ordinal resolution class. Higher is better.
type Resolution int

const (
	ResolutionUnknown Resolution = iota
	ResolutionSD
	Resolution720p
	Resolution1080p
	Resolution4K
)

// ParseResolution maps a catalog resolution label to a Resolution.
// Unrecognized labels map to ResolutionUnknown, never an error.
func ParseResolution(label string) Resolution {
	switch strings.TrimSuffix(strings.ToLower(label), "p") {
	case "4k", "2160":
		return Resolution4K
	case "1080":
		return Resolution1080p
	case "720":
		return Resolution720p
	case "576", "480", "sd":
		return ResolutionSD
	default:
		return ResolutionUnknown
	}
}

func (r Resolution) String() string {
	switch r {
	case Resolution4K:
		return "4K"
	case Resolution1080p:
		return "1080p"
	case Resolution720p:
		return "720p"
	case ResolutionSD:
		return "SD"
	default:
		return "unknown"
	}
}

// Source is an ordinal container/source type. Higher is better.
type Source int

const (
	SourceUnknown Source = iota
	SourceHDTV
	SourceWebRip
	SourceWebDL
	SourceBluray
	SourceRemux
)

// sourcePatterns maps release-name substrings to sources, checked in rank
// order so "bdremux" wins over the "bluray" it also contains.
var sourcePatterns = []struct {
	source Source
	tokens []string
}{
	{SourceRemux, []string{"remux", "bdremux"}},
	{SourceBluray, []string{"bluray", "blu-ray", "blu.ray", "bdrip", "brrip"}},
	{SourceWebDL, []string{"web-dl", "webdl", "web.dl"}},
	{SourceWebRip, []string{"webrip", "web-rip", "web.rip"}},
	{SourceHDTV, []string{"hdtv", "sdtv", "tvrip", "dvdrip", "dvd"}},
}

// ParseSource detects the source type from a file path or release name.
// Unrecognized input maps to SourceUnknown.
func ParseSource(path string) Source {
	lower := strings.ToLower(path)
	for _, p := range sourcePatterns {
		for _, token := range p.tokens {
			if strings.Contains(lower, token) {
				return p.source
			}
		}
	}
	return SourceUnknown
}

func (s Source) String() string {
	switch s {
	case SourceRemux:
		return "remux"
	case SourceBluray:
		return "bluray"
	case SourceWebDL:
		return "webdl"
	case SourceWebRip:
		return "webrip"
	case SourceHDTV:
		return "hdtv"
	default:
		return "unknown"
	}
}

// ExternalIDs holds identifiers used for source-service and subtitle lookup.
type ExternalIDs struct {
	IMDB string `json:"imdbId,omitempty"`
	TMDB string `json:"tmdbId,omitempty"`
	TVDB string `json:"tvdbId,omitempty"`
}

// Item is one logical work in the catalog: a movie or a single episode.
type Item struct {
	ID    string      `json:"id"` // opaque catalog identity (Plex rating key)
	Title string      `json:"title"`
	Year  int         `json:"year,omitempty"`
	Kind  Kind        `json:"kind"`
	IDs   ExternalIDs `json:"ids"`

	// Episode fields, zero for movies.
	ShowTitle     string `json:"showTitle,omitempty"`
	SeasonNumber  int    `json:"seasonNumber,omitempty"`
	EpisodeNumber int    `json:"episodeNumber,omitempty"`
}

// DisplayTitle renders the item for logs and reports.
func (i Item) DisplayTitle() string {
	if i.Kind == KindEpisode && i.ShowTitle != "" {
		return fmt.Sprintf("%s - S%02dE%02d - %s",
			i.ShowTitle, i.SeasonNumber, i.EpisodeNumber, i.Title)
	}
	if i.Year > 0 {
		return fmt.Sprintf("%s (%d)", i.Title, i.Year)
	}
	return i.Title
}

// Version is one physical file backing an Item.
type Version struct {
	MediaID    int64      `json:"mediaId"` // catalog-side media record id
	Path       string     `json:"path"`
	Size       int64      `json:"size"` // bytes
	Resolution Resolution `json:"resolution"`
	VideoCodec string     `json:"videoCodec"`
	AudioCodec string     `json:"audioCodec"`
	Source     Source     `json:"source"`
	Bitrate    int64      `json:"bitrate"` // kbps
	Duration   int64      `json:"duration"` // ms
	Container  string     `json:"container"`
	AddedAt    time.Time  `json:"addedAt"`

	// Subtitle languages the catalog already reports embedded or sidecar.
	SubtitleLanguages []string `json:"subtitleLanguages,omitempty"`
}

// SizeGB returns the file size in gibibytes, rounded to two decimals.
func (v Version) SizeGB() float64 {
	return float64(int64(float64(v.Size)/(1<<30)*100)) / 100
}

// QualityLabel renders a short human-readable quality summary.
func (v Version) QualityLabel() string {
	parts := make([]string, 0, 4)
	if v.Resolution != ResolutionUnknown {
		parts = append(parts, v.Resolution.String())
	}
	if v.Source != SourceUnknown {
		parts = append(parts, v.Source.String())
	}
	if v.VideoCodec != "" {
		parts = append(parts, v.VideoCodec)
	}
	if v.AudioCodec != "" {
		parts = append(parts, v.AudioCodec)
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, " / ")
}

// ItemVersions pairs an Item with all of its physical versions.
type ItemVersions struct {
	Item     Item      `json:"item"`
	Versions []Version `json:"versions"`
}

// DuplicateGroup is an Item with two or more versions. The grouper never
// emits a group with fewer than two.
type DuplicateGroup struct {
	Item     Item      `json:"item"`
	Versions []Version `json:"versions"`
}

// TotalSize returns the combined size of all versions in the group.
func (g DuplicateGroup) TotalSize() int64 {
	var total int64
	for _, v := range g.Versions {
		total += v.Size
	}
	return total
}

// WastedSize returns the bytes occupied by everything but the largest version.
func (g DuplicateGroup) WastedSize() int64 {
	if len(g.Versions) < 2 {
		return 0
	}
	var total, largest int64
	for _, v := range g.Versions {
		total += v.Size
		if v.Size > largest {
			largest = v.Size
		}
	}
	return total - largest
}
