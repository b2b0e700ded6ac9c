package subtitles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/config"
	"github.com/reelsweep/reelsweep/internal/faults"
	"github.com/reelsweep/reelsweep/internal/media"
	"github.com/reelsweep/reelsweep/internal/oshash"
	"github.com/reelsweep/reelsweep/internal/retry"
)

// Status is the final state of one (version, language) request.
type Status string

const (
	StatusDownloaded   Status = "downloaded"
	StatusExists       Status = "exists"
	StatusNotFound     Status = "not_found"
	StatusSkippedQuota Status = "skipped_quota"
	StatusSkippedAuth  Status = "skipped_auth"
	StatusFailed       Status = "failed"
)

// Request is the unit of work: one missing language for one version.
type Request struct {
	Item     media.Item    `json:"item"`
	Version  media.Version `json:"version"`
	Language string        `json:"language"`
}

// Result records the outcome of one request.
type Result struct {
	Item        media.Item `json:"item"`
	Path        string     `json:"path"`
	Language    string     `json:"language"`
	Status      Status     `json:"status"`
	SidecarPath string     `json:"sidecarPath,omitempty"`
	Candidate   *Candidate `json:"candidate,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// ScanReport lists every subtitle gap found in the catalog.
type ScanReport struct {
	ScanID    string      `json:"scanId"`
	Scope     media.Scope `json:"scope"`
	StartedAt time.Time   `json:"startedAt"`
	Requests  []Request   `json:"requests"`
	Summary   ScanSummary `json:"summary"`
}

// ScanSummary aggregates a gap scan.
type ScanSummary struct {
	ItemsScanned int            `json:"itemsScanned"`
	MissingTotal int            `json:"missingTotal"`
	ByLanguage   map[string]int `json:"byLanguage"`
}

// ApplyReport records one download run.
type ApplyReport struct {
	RunID     string       `json:"runId"`
	StartedAt time.Time    `json:"startedAt"`
	Results   []Result     `json:"results"`
	Summary   ApplySummary `json:"summary"`
}

// ApplySummary counts request outcomes. Quota and auth skips are kept apart
// from failures: they describe the provider's state, not the requests.
type ApplySummary struct {
	Downloaded   int `json:"downloaded"`
	Exists       int `json:"exists"`
	NotFound     int `json:"notFound"`
	SkippedQuota int `json:"skippedQuota"`
	SkippedAuth  int `json:"skippedAuth"`
	Failed       int `json:"failed"`
}

// Recorder persists run reports. Nil recorder means no history.
type Recorder interface {
	RecordSubtitleScan(ctx context.Context, report *ScanReport)
	RecordSubtitleApply(ctx context.Context, report *ApplyReport)
}

// Service finds subtitle gaps and fills them from a provider.
type Service struct {
	cfg      config.SubtitlesConfig
	catalog  Catalog
	provider Provider
	store    SidecarStore
	dl       *downloader
	policy   retry.Policy
	recorder Recorder
	logger   zerolog.Logger

	// hash is swappable for tests; production uses oshash.Sum.
	hash func(path string) (string, error)
}

// NewService creates the subtitle service.
func NewService(cfg config.SubtitlesConfig, catalog Catalog, provider Provider, store SidecarStore, logger zerolog.Logger) *Service {
	l := logger.With().Str("component", "subtitles").Logger()
	return &Service{
		cfg:      cfg,
		catalog:  catalog,
		provider: provider,
		store:    store,
		dl:       &downloader{provider: provider, store: store, policy: retry.DefaultPolicy(), logger: l},
		policy:   retry.DefaultPolicy(),
		logger:   l,
		hash:     oshash.Sum,
	}
}

// SetRecorder attaches a history recorder.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Scan lists the catalog and reports every (version, language) pair that has
// no subtitle, embedded or sidecar. Read-only. limit caps how many items may
// contribute requests; 0 means no cap.
func (s *Service) Scan(ctx context.Context, scope media.Scope, limit int) (*ScanReport, error) {
	var items []media.ItemVersions
	err := retry.Do(ctx, "list catalog items", s.policy, s.logger, func() error {
		var listErr error
		items, listErr = s.catalog.ListItems(ctx, scope)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("catalog listing failed: %w", err)
	}

	report := &ScanReport{
		ScanID:    uuid.NewString(),
		Scope:     scope,
		StartedAt: time.Now().UTC(),
		Summary:   ScanSummary{ByLanguage: make(map[string]int)},
	}

	itemsWithGaps := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if limit > 0 && itemsWithGaps >= limit {
			break
		}
		report.Summary.ItemsScanned++
		found := false
		for _, v := range item.Versions {
			for _, lang := range MissingLanguages(v, s.cfg.Languages, s.store) {
				report.Requests = append(report.Requests, Request{
					Item:     item.Item,
					Version:  v,
					Language: lang,
				})
				report.Summary.ByLanguage[lang]++
				found = true
			}
		}
		if found {
			itemsWithGaps++
		}
	}
	report.Summary.MissingTotal = len(report.Requests)

	s.logger.Info().
		Str("scanId", report.ScanID).
		Int("items", report.Summary.ItemsScanned).
		Int("missing", report.Summary.MissingTotal).
		Msg("subtitle scan complete")

	if s.recorder != nil {
		s.recorder.RecordSubtitleScan(ctx, report)
	}
	return report, nil
}

// runState carries the provider-level stop signals shared by all workers.
// Quota exhaustion and authentication failure each poison the rest of the
// run: no further lookups are issued, and the remaining requests finish in
// the matching skipped status instead of failed.
type runState struct {
	quotaHit atomic.Bool
	authHit  atomic.Bool
}

// Apply works through the requests on a bounded pool. Once the provider
// signals quota exhaustion or rejects the credentials, every
// not-yet-attempted request finishes as skipped_quota or skipped_auth
// instead of failed; the run itself still succeeds.
func (s *Service) Apply(ctx context.Context, requests []Request) (*ApplyReport, error) {
	if s.provider == nil {
		return nil, errors.New("no subtitle provider configured")
	}

	report := &ApplyReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	if workers > len(requests) {
		workers = len(requests)
	}

	var state runState

	if workers > 0 {
		type indexed struct {
			idx    int
			result Result
		}

		jobs := make(chan int)
		results := make(chan indexed, len(requests))
		var wg sync.WaitGroup

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case i, ok := <-jobs:
						if !ok {
							return
						}
						// Cancellation is checked between requests, never
						// mid-download.
						if ctx.Err() != nil {
							return
						}
						results <- indexed{idx: i, result: s.process(ctx, requests[i], &state)}
					}
				}
			}()
		}

		go func() {
			defer close(jobs)
			for i := range requests {
				select {
				case <-ctx.Done():
					return
				case jobs <- i:
				}
			}
		}()

		go func() {
			wg.Wait()
			close(results)
		}()

		done := make(map[int]Result, len(requests))
		for r := range results {
			done[r.idx] = r.result
		}
		for i := range requests {
			if r, ok := done[i]; ok {
				report.Results = append(report.Results, r)
			}
		}
	}

	for _, r := range report.Results {
		switch r.Status {
		case StatusDownloaded:
			report.Summary.Downloaded++
		case StatusExists:
			report.Summary.Exists++
		case StatusNotFound:
			report.Summary.NotFound++
		case StatusSkippedQuota:
			report.Summary.SkippedQuota++
		case StatusSkippedAuth:
			report.Summary.SkippedAuth++
		case StatusFailed:
			report.Summary.Failed++
		}
	}

	s.logger.Info().
		Str("runId", report.RunID).
		Int("downloaded", report.Summary.Downloaded).
		Int("notFound", report.Summary.NotFound).
		Int("skippedQuota", report.Summary.SkippedQuota).
		Int("skippedAuth", report.Summary.SkippedAuth).
		Int("failed", report.Summary.Failed).
		Msg("subtitle apply complete")

	// New sidecars only show up in the catalog after a rescan. Best effort;
	// a refresh failure does not fail the run.
	if report.Summary.Downloaded > 0 {
		if refresher, ok := s.catalog.(interface{ RefreshAll(ctx context.Context) error }); ok {
			if err := refresher.RefreshAll(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("library refresh after subtitle apply failed")
			}
		}
	}

	if s.recorder != nil {
		s.recorder.RecordSubtitleApply(ctx, report)
	}
	return report, nil
}

func (s *Service) process(ctx context.Context, req Request, state *runState) Result {
	result := Result{
		Item:     req.Item,
		Path:     req.Version.Path,
		Language: req.Language,
	}

	if state.quotaHit.Load() {
		result.Status = StatusSkippedQuota
		result.Reason = "download quota exhausted earlier in this run"
		return result
	}
	if state.authHit.Load() {
		result.Status = StatusSkippedAuth
		result.Reason = "provider rejected credentials earlier in this run"
		return result
	}

	sidecar := SidecarPath(req.Version.Path, req.Language)
	if s.store.Exists(sidecar) {
		result.Status = StatusExists
		result.SidecarPath = sidecar
		return result
	}

	search := s.buildSearch(req)

	var candidates []Candidate
	err := retry.Do(ctx, "subtitle search", s.policy, s.logger, func() error {
		var searchErr error
		candidates, searchErr = s.provider.Search(ctx, search)
		return searchErr
	})
	if err != nil {
		return s.classify(result, err, state, "search failed")
	}

	best, ok := Best(candidates, req.Language)
	if !ok {
		result.Status = StatusNotFound
		result.Reason = "no candidate in requested language"
		return result
	}
	result.Candidate = &best

	path, err := s.dl.fetch(ctx, best, req.Version.Path)
	if errors.Is(err, ErrSidecarExists) {
		result.Status = StatusExists
		result.SidecarPath = path
		return result
	}
	if err != nil {
		return s.classify(result, err, state, "download failed")
	}

	result.Status = StatusDownloaded
	result.SidecarPath = path
	return result
}

// classify turns a provider error into a result. Quota exhaustion and auth
// rejection are not failures: the request is marked skipped and the rest of
// the run follows, since re-attempting either is pointless until the quota
// resets or the credentials change.
func (s *Service) classify(result Result, err error, state *runState, context string) Result {
	if errors.Is(err, faults.ErrRateLimit) {
		state.quotaHit.Store(true)
		result.Status = StatusSkippedQuota
		result.Reason = "download quota exhausted"
		return result
	}
	if errors.Is(err, faults.ErrAuth) {
		state.authHit.Store(true)
		result.Status = StatusSkippedAuth
		result.Reason = "provider rejected credentials"
		s.logger.Warn().Err(err).Msg("provider authentication failed, skipping remaining requests")
		return result
	}
	result.Status = StatusFailed
	result.Reason = fmt.Sprintf("%s: %v", context, err)
	s.logger.Warn().Err(err).
		Str("path", result.Path).
		Str("language", result.Language).
		Msg(context)
	return result
}

// buildSearch assembles the provider query. The moviehash is best-effort:
// an unreadable or too-small file degrades the search to metadata-only.
func (s *Service) buildSearch(req Request) SearchRequest {
	search := SearchRequest{
		Languages: []string{req.Language},
		Year:      req.Item.Year,
		IMDBID:    req.Item.IDs.IMDB,
		Kind:      req.Item.Kind,
	}

	if req.Item.Kind == media.KindEpisode {
		search.Title = req.Item.ShowTitle
		search.Season = req.Item.SeasonNumber
		search.Episode = req.Item.EpisodeNumber
	} else {
		search.Title = req.Item.Title
	}

	if hash, err := s.hash(req.Version.Path); err == nil {
		search.MovieHash = hash
	} else {
		s.logger.Debug().Err(err).Str("path", req.Version.Path).Msg("moviehash unavailable, metadata search only")
	}
	return search
}
