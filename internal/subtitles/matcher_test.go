package subtitles

import (
	"sync"
	"testing"

	"github.com/reelsweep/reelsweep/internal/media"
)

type fakeStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string][]byte)}
}

func (f *fakeStore) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

func (f *fakeStore) WriteFile(path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
	return nil
}

func TestSidecarPath(t *testing.T) {
	tests := []struct {
		video string
		lang  string
		want  string
	}{
		{"/movies/Heat (1995)/Heat.mkv", "sv", "/movies/Heat (1995)/Heat.sv.srt"},
		{"/tv/The Wire/S01E01.mp4", "en", "/tv/The Wire/S01E01.en.srt"},
		{"/movies/noext", "en", "/movies/noext.en.srt"},
	}
	for _, tt := range tests {
		if got := SidecarPath(tt.video, tt.lang); got != tt.want {
			t.Errorf("SidecarPath(%q, %q) = %q, want %q", tt.video, tt.lang, got, tt.want)
		}
	}
}

func TestMissingLanguages(t *testing.T) {
	store := newFakeStore()
	store.files["/movies/Heat.en.srt"] = []byte("1\n")

	v := media.Version{
		Path:              "/movies/Heat.mkv",
		SubtitleLanguages: []string{"FR"},
	}

	got := MissingLanguages(v, []string{"sv", "en", "fr"}, store)

	// en is covered by the sidecar, fr by the embedded stream (case folded).
	if len(got) != 1 || got[0] != "sv" {
		t.Errorf("MissingLanguages() = %v, want [sv]", got)
	}
}

func TestMissingLanguagesPreservesWantedOrder(t *testing.T) {
	v := media.Version{Path: "/movies/Heat.mkv"}
	got := MissingLanguages(v, []string{"sv", "en"}, newFakeStore())
	if len(got) != 2 || got[0] != "sv" || got[1] != "en" {
		t.Errorf("MissingLanguages() = %v, want [sv en]", got)
	}
}

func TestBestHashBeatsMetadataConfidence(t *testing.T) {
	// A hash match is an exact-file identity; it outranks any metadata
	// confidence value.
	candidates := []Candidate{
		{ID: "meta", Language: "en", Basis: BasisMetadata, Confidence: 0.99, Downloads: 90000},
		{ID: "hash", Language: "en", Basis: BasisHash, Confidence: 0.98, Downloads: 12},
	}

	best, ok := Best(candidates, "en")
	if !ok {
		t.Fatal("Best() found nothing")
	}
	if best.ID != "hash" {
		t.Errorf("best = %s, want the hash match", best.ID)
	}
}

func TestBestQualityOrderingWithinBasis(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		want       string
	}{
		{
			name: "higher confidence wins",
			candidates: []Candidate{
				{ID: "low", Language: "en", Basis: BasisMetadata, Confidence: 0.7},
				{ID: "high", Language: "en", Basis: BasisMetadata, Confidence: 0.9},
			},
			want: "high",
		},
		{
			name: "machine translation loses",
			candidates: []Candidate{
				{ID: "mt", Language: "en", Confidence: 0.9, MachineTranslated: true, Downloads: 5000},
				{ID: "human", Language: "en", Confidence: 0.9, Downloads: 10},
			},
			want: "human",
		},
		{
			name: "trusted uploader preferred",
			candidates: []Candidate{
				{ID: "anon", Language: "en", Confidence: 0.9, Downloads: 5000},
				{ID: "trusted", Language: "en", Confidence: 0.9, FromTrusted: true, Downloads: 10},
			},
			want: "trusted",
		},
		{
			name: "hearing impaired loses to regular",
			candidates: []Candidate{
				{ID: "hi", Language: "en", Confidence: 0.9, HearingImpaired: true, Downloads: 5000},
				{ID: "plain", Language: "en", Confidence: 0.9, Downloads: 10},
			},
			want: "plain",
		},
		{
			name: "downloads break remaining ties",
			candidates: []Candidate{
				{ID: "few", Language: "en", Confidence: 0.9, Downloads: 10},
				{ID: "many", Language: "en", Confidence: 0.9, Downloads: 5000},
			},
			want: "many",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best, ok := Best(tt.candidates, "en")
			if !ok {
				t.Fatal("Best() found nothing")
			}
			if best.ID != tt.want {
				t.Errorf("best = %s, want %s", best.ID, tt.want)
			}
		})
	}
}

func TestBestFiltersLanguage(t *testing.T) {
	candidates := []Candidate{
		{ID: "sv", Language: "sv", Basis: BasisHash, Confidence: 1.0},
	}
	if _, ok := Best(candidates, "en"); ok {
		t.Error("Best() must not return a candidate in another language")
	}
}

func TestBestFullTieKeepsProviderOrder(t *testing.T) {
	candidates := []Candidate{
		{ID: "first", Language: "en", Confidence: 0.9, Downloads: 100},
		{ID: "second", Language: "en", Confidence: 0.9, Downloads: 100},
	}
	best, _ := Best(candidates, "en")
	if best.ID != "first" {
		t.Errorf("best = %s, full ties must keep provider order", best.ID)
	}
}
