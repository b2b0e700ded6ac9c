package subtitles

import (
	"context"

	"github.com/reelsweep/reelsweep/internal/media"
)

// Catalog lists the media items to fill subtitle gaps for. The Plex client
// satisfies this.
type Catalog interface {
	ListItems(ctx context.Context, scope media.Scope) ([]media.ItemVersions, error)
}

// Provider searches for and downloads subtitles. The OpenSubtitles client
// satisfies this. A faults.ErrRateLimit from either method means the
// download quota is exhausted for the rest of the run.
type Provider interface {
	Search(ctx context.Context, req SearchRequest) ([]Candidate, error)
	Download(ctx context.Context, candidate Candidate) ([]byte, error)
}

// SidecarStore reads and writes subtitle sidecar files next to the video.
type SidecarStore interface {
	Exists(path string) bool
	WriteFile(path string, data []byte) error
}

// SearchRequest describes one (version, languages) lookup. MovieHash is
// optional; when present the provider can match by file identity instead of
// metadata.
type SearchRequest struct {
	Languages []string
	MovieHash string
	Title     string
	Year      int
	Season    int
	Episode   int
	IMDBID    string
	Kind      media.Kind
}

// SearchBasis records how a candidate was matched.
type SearchBasis string

const (
	// BasisHash means the provider matched the exact file by moviehash.
	BasisHash SearchBasis = "hash"
	// BasisMetadata means the provider matched on title, year, season and
	// episode numbers.
	BasisMetadata SearchBasis = "metadata"
)

// Candidate is one downloadable subtitle offered by a provider.
type Candidate struct {
	ID                string      `json:"id"`
	FileID            int64       `json:"fileId"`
	Language          string      `json:"language"`
	Basis             SearchBasis `json:"basis"`
	Confidence        float64     `json:"confidence"`
	Release           string      `json:"release,omitempty"`
	FromTrusted       bool        `json:"fromTrusted"`
	HearingImpaired   bool        `json:"hearingImpaired"`
	MachineTranslated bool        `json:"machineTranslated"`
	Downloads         int         `json:"downloads"`
}
