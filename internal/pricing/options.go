package pricing

// Options is the tagged union of per-family request options. Each
// content family carries only its legal fields; the engine matches
// exhaustively on the concrete type.
type Options interface {
	family() string
}

// PhotoOptions parameterize image models.
type PhotoOptions struct {
	// Quality is model-specific: "1k", "2k", "4k", "1k_2k" for
	// nano-banana-pro/flux, "medium"/"high" for gpt-image.
	Quality string
}

func (PhotoOptions) family() string { return "photo" }

// VideoOptions parameterize clip models.
type VideoOptions struct {
	DurationSec int
	// Resolution is "720p" or "1080p".
	Resolution string
	Audio      bool
	// QualityTier applies to tiered models: "standard", "pro", "master".
	QualityTier string
	// Extend requests a continuation of an existing clip.
	Extend bool
}

func (VideoOptions) family() string { return "video" }

// MotionControlOptions parameterize per-second motion transfer models.
type MotionControlOptions struct {
	// RawDurationSec is the source video duration before clamping.
	RawDurationSec float64
	Resolution     string
}

func (MotionControlOptions) family() string { return "motion_control" }

// LipSyncOptions parameterize talking-head models billed per second of
// driving audio.
type LipSyncOptions struct {
	AudioDurationSec float64
}

func (LipSyncOptions) family() string { return "lipsync" }
