package subtitles

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/retry"
)

// ErrSidecarExists means the target sidecar appeared between the scan and
// the download. Existing files are never overwritten.
var ErrSidecarExists = errors.New("subtitle sidecar already exists")

// downloader fetches one candidate and writes it next to the video.
type downloader struct {
	provider Provider
	store    SidecarStore
	policy   retry.Policy
	logger   zerolog.Logger
}

// fetch downloads the candidate and writes it to the canonical sidecar
// path. The existence check is repeated here because another worker or an
// external process may have produced the file since the scan. The download
// itself is retried on transient faults; quota and auth errors are final.
func (d *downloader) fetch(ctx context.Context, candidate Candidate, videoPath string) (string, error) {
	path := SidecarPath(videoPath, candidate.Language)
	if d.store.Exists(path) {
		return path, ErrSidecarExists
	}

	var data []byte
	err := retry.Do(ctx, "subtitle download", d.policy, d.logger, func() error {
		var dlErr error
		data, dlErr = d.provider.Download(ctx, candidate)
		return dlErr
	})
	if err != nil {
		return path, err
	}
	if len(data) == 0 {
		return path, fmt.Errorf("provider returned empty subtitle for %s", candidate.ID)
	}

	if err := d.store.WriteFile(path, data); err != nil {
		return path, err
	}

	d.logger.Debug().
		Str("path", path).
		Str("candidate", candidate.ID).
		Int("bytes", len(data)).
		Msg("subtitle written")
	return path, nil
}
