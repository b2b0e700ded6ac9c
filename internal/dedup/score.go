package dedup

import (
	"strings"

	"github.com/reelsweep/reelsweep/internal/media"
)

// Factor weights. Each factor is normalized to roughly [0,1] before
// weighting, so the weight is also the factor's maximum contribution.
// Resolution and source dominate, bitrate moderates, codecs nudge.
const (
	weightResolution = 100.0
	weightSource     = 100.0
	weightBitrate    = 30.0
	weightVideoCodec = 12.0
	weightAudioCodec = 10.0

	// bitrateKneeKbps is the bitrate at which the bitrate factor reaches
	// half of its weight. The curve b/(b+knee) keeps "higher is strictly
	// better" without letting an absurd bitrate drown the other factors.
	bitrateKneeKbps = 40000.0
)

// Breakdown holds the per-factor contributions of a version's score.
type Breakdown struct {
	Resolution float64 `json:"resolution"`
	Source     float64 `json:"source"`
	Bitrate    float64 `json:"bitrate"`
	VideoCodec float64 `json:"videoCodec"`
	AudioCodec float64 `json:"audioCodec"`
	Total      float64 `json:"total"`
}

// ScoredVersion pairs a version with its computed score.
type ScoredVersion struct {
	Version media.Version `json:"version"`
	Score   Breakdown     `json:"score"`
}

// Score computes the quality score of a version. It is a pure function:
// identical attributes always produce an identical breakdown, and every
// input is defined (unknown metadata ranks lowest instead of failing).
func Score(v media.Version) Breakdown {
	b := Breakdown{
		Resolution: resolutionRank(v.Resolution) * weightResolution,
		Source:     sourceRank(v.Source) * weightSource,
		Bitrate:    bitrateRank(v.Bitrate) * weightBitrate,
		VideoCodec: videoCodecRank(v.VideoCodec) * weightVideoCodec,
		AudioCodec: audioCodecRank(v.AudioCodec) * weightAudioCodec,
	}
	b.Total = b.Resolution + b.Source + b.Bitrate + b.VideoCodec + b.AudioCodec
	return b
}

// ScoreAll scores every version of a group, preserving input order.
func ScoreAll(versions []media.Version) []ScoredVersion {
	scored := make([]ScoredVersion, len(versions))
	for i, v := range versions {
		scored[i] = ScoredVersion{Version: v, Score: Score(v)}
	}
	return scored
}

func resolutionRank(r media.Resolution) float64 {
	switch r {
	case media.Resolution4K:
		return 1.0
	case media.Resolution1080p:
		return 0.75
	case media.Resolution720p:
		return 0.5
	case media.ResolutionSD:
		return 0.25
	default:
		return 0
	}
}

func sourceRank(s media.Source) float64 {
	switch s {
	case media.SourceRemux:
		return 1.0
	case media.SourceBluray:
		return 0.8
	case media.SourceWebDL:
		return 0.6
	case media.SourceWebRip:
		return 0.4
	case media.SourceHDTV:
		return 0.2
	default:
		return 0
	}
}

func bitrateRank(kbps int64) float64 {
	if kbps <= 0 {
		return 0
	}
	b := float64(kbps)
	return b / (b + bitrateKneeKbps)
}

func videoCodecRank(codec string) float64 {
	switch strings.ToUpper(codec) {
	case "AV1":
		return 1.0
	case "HEVC", "H265", "X265":
		return 0.85
	case "H264", "X264", "AVC":
		return 0.4
	default:
		return 0
	}
}

func audioCodecRank(codec string) float64 {
	upper := strings.ToUpper(codec)
	switch {
	case strings.Contains(upper, "TRUEHD"), strings.Contains(upper, "ATMOS"):
		return 1.0
	case strings.Contains(upper, "DTS-HD"), strings.Contains(upper, "DTSHD"), strings.Contains(upper, "DTS:X"):
		return 0.8
	case strings.Contains(upper, "DTS"):
		return 0.5
	case strings.Contains(upper, "EAC3"), strings.Contains(upper, "DD+"):
		return 0.4
	case strings.Contains(upper, "AAC"):
		return 0.2
	default:
		return 0
	}
}
