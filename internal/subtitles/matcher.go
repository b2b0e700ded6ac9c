package subtitles

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/reelsweep/reelsweep/internal/media"
)

// SidecarPath returns the canonical sidecar location for a language:
// the video path with its extension replaced by ".<lang>.srt".
func SidecarPath(videoPath, lang string) string {
	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	return fmt.Sprintf("%s.%s.srt", base, lang)
}

// MissingLanguages returns the wanted languages a version has no subtitle
// for, in the wanted order. A language counts as present when the catalog
// reports an embedded or known external stream for it, or when the sidecar
// file already exists on disk.
func MissingLanguages(v media.Version, wanted []string, store SidecarStore) []string {
	present := make(map[string]bool, len(v.SubtitleLanguages))
	for _, lang := range v.SubtitleLanguages {
		present[strings.ToLower(lang)] = true
	}

	var missing []string
	for _, lang := range wanted {
		lang = strings.ToLower(lang)
		if present[lang] {
			continue
		}
		if store != nil && store.Exists(SidecarPath(v.Path, lang)) {
			continue
		}
		missing = append(missing, lang)
	}
	return missing
}

// Best picks the strongest candidate for a language. Match basis dominates:
// any hash match outranks any metadata match, whatever the metadata
// confidence claims. Within a basis, higher confidence wins, then release
// quality: human-translated over machine, trusted uploaders first, regular
// over hearing-impaired, then raw download count. Ties keep provider order.
func Best(candidates []Candidate, lang string) (Candidate, bool) {
	lang = strings.ToLower(lang)
	var pool []Candidate
	for _, c := range candidates {
		if strings.ToLower(c.Language) == lang {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return Candidate{}, false
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if (a.Basis == BasisHash) != (b.Basis == BasisHash) {
			return a.Basis == BasisHash
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.MachineTranslated != b.MachineTranslated {
			return !a.MachineTranslated
		}
		if a.FromTrusted != b.FromTrusted {
			return a.FromTrusted
		}
		if a.HearingImpaired != b.HearingImpaired {
			return !a.HearingImpaired
		}
		return a.Downloads > b.Downloads
	})

	return pool[0], true
}
