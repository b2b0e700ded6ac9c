package opensubtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsweep/reelsweep/internal/faults"
	"github.com/reelsweep/reelsweep/internal/media"
	"github.com/reelsweep/reelsweep/internal/subtitles"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "apikey", Logger: zerolog.Nop()})
	require.NoError(t, err)
	return client
}

const searchJSON = `{"data":[
	{"id":"900","attributes":{"language":"en","moviehash_match":true,"from_trusted":false,
		"download_count":12,"release":"Heat.1995.Remux","files":[{"file_id":9001}]}},
	{"id":"901","attributes":{"language":"en","moviehash_match":false,"from_trusted":true,
		"download_count":90000,"release":"Heat.1995.WEB","files":[{"file_id":9011}]}},
	{"id":"902","attributes":{"language":"en","files":[]}}
]}`

func TestSearchMapsCandidates(t *testing.T) {
	var query map[string][]string
	mux := http.NewServeMux()
	mux.HandleFunc("/subtitles", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != "apikey" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		query = r.URL.Query()
		w.Write([]byte(searchJSON))
	})
	client := newTestClient(t, mux)

	candidates, err := client.Search(context.Background(), subtitles.SearchRequest{
		Languages: []string{"en"},
		MovieHash: "00000000deadbeef",
		Title:     "Heat",
		Year:      1995,
		IMDBID:    "tt0113277",
		Kind:      media.KindMovie,
	})
	require.NoError(t, err)

	// The fileless entry is dropped.
	require.Len(t, candidates, 2)
	assert.Equal(t, subtitles.BasisHash, candidates[0].Basis)
	assert.Equal(t, 1.0, candidates[0].Confidence)
	assert.Equal(t, subtitles.BasisMetadata, candidates[1].Basis)
	assert.Less(t, candidates[1].Confidence, candidates[0].Confidence,
		"metadata confidence must stay below a hash match")
	assert.Equal(t, int64(9001), candidates[0].FileID)

	assert.Equal(t, []string{"00000000deadbeef"}, query["moviehash"])
	// The API wants the bare numeric IMDB id.
	assert.Equal(t, []string{"0113277"}, query["imdb_id"])
	assert.Equal(t, []string{"1995"}, query["year"])
}

func TestSearchEpisodeParams(t *testing.T) {
	var query map[string][]string
	mux := http.NewServeMux()
	mux.HandleFunc("/subtitles", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`{"data":[]}`))
	})
	client := newTestClient(t, mux)

	_, err := client.Search(context.Background(), subtitles.SearchRequest{
		Languages: []string{"sv"},
		Title:     "The Wire",
		Season:    1,
		Episode:   3,
		Kind:      media.KindEpisode,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, query["season_number"])
	assert.Equal(t, []string{"3"}, query["episode_number"])
}

func TestDownloadFollowsGrantLink(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]int64
		json.NewDecoder(r.Body).Decode(&payload)
		assert.Equal(t, int64(9001), payload["file_id"])
		fmt.Fprintf(w, `{"link":"%s/content/9001.srt","remaining":19}`, srv.URL)
	})
	mux.HandleFunc("/content/9001.srt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n"))
	})

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "apikey", Logger: zerolog.Nop()})
	require.NoError(t, err)

	data, err := client.Download(context.Background(), subtitles.Candidate{ID: "900", FileID: 9001})
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestServerErrorIsConnectivityFault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/subtitles", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client := newTestClient(t, mux)

	_, err := client.Search(context.Background(), subtitles.SearchRequest{Languages: []string{"en"}})
	assert.ErrorIs(t, err, faults.ErrConnectivity,
		"a 500 must classify as a retryable connectivity fault")
}

func TestQuotaExceededIsRateLimitFault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		// 406 is how the API reports an exhausted download quota.
		w.WriteHeader(http.StatusNotAcceptable)
	})
	client := newTestClient(t, mux)

	_, err := client.Download(context.Background(), subtitles.Candidate{FileID: 1})
	assert.ErrorIs(t, err, faults.ErrRateLimit)
}

func TestLoginSetsBearerToken(t *testing.T) {
	var sawBearer string
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"jwt-token"}`))
	})
	mux.HandleFunc("/subtitles", func(w http.ResponseWriter, r *http.Request) {
		sawBearer = r.Header.Get("Authorization")
		w.Write([]byte(`{"data":[]}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	client, err := NewClient(ClientConfig{
		BaseURL: srv.URL, APIKey: "apikey",
		Username: "user", Password: "pass", Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, client.Login(context.Background()))
	_, err = client.Search(context.Background(), subtitles.SearchRequest{Languages: []string{"en"}})
	require.NoError(t, err)
	assert.Equal(t, "Bearer jwt-token", sawBearer)
}

func TestLoginWithoutCredentialsIsNoOp(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without credentials")
	}))
	assert.NoError(t, client.Login(context.Background()))
}
