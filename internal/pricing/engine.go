package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/starfall-ai/starfall-backend/pkg/errors"
)

// Quote is the priced form of a generation request. PriceStars is the
// exact amount the ledger will deduct on success; SKU and
// PricingVersion are persisted alongside the job so the charge can be
// explained later.
type Quote struct {
	SKU            string `json:"sku"`
	PriceStars     int    `json:"price_stars"`
	PricingVersion string `json:"pricing_version"`
}

// NormalizeModelID maps public model identifiers onto table keys:
// dashes and dots become underscores, so "veo-3.1-fast" and
// "veo_3_1_fast" price identically.
func NormalizeModelID(modelID string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return '_'
		}
		return r
	}, modelID)
}

// Compute resolves a model and its options into a priced quote. It is
// pure: the same inputs always produce the same SKU and price. Unknown
// models and SKUs without a table entry fail with a validation error
// rather than defaulting to zero.
func Compute(modelID string, opts Options) (*Quote, error) {
	normalized := NormalizeModelID(modelID)

	sku, seconds, err := resolveSKU(normalized, opts)
	if err != nil {
		return nil, err
	}

	base, ok := priceStars[sku]
	if !ok {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("no price defined for sku %q", sku))
	}

	total := base
	if seconds > 0 {
		total = base * seconds
	}

	return &Quote{
		SKU:            sku,
		PriceStars:     total,
		PricingVersion: Version,
	}, nil
}

// resolveSKU builds the table key for a model. For per-second billed
// families it also returns the billable seconds multiplier; fixed-price
// SKUs return 0 seconds.
func resolveSKU(modelID string, opts Options) (string, int, error) {
	switch modelID {
	// Photo
	case "nano_banana":
		return "nano_banana:image", 0, nil
	case "nano_banana_pro":
		photo, err := photoOpts(modelID, opts)
		if err != nil {
			return "", 0, err
		}
		if photo.Quality == "4k" {
			return "nano_banana_pro:4k", 0, nil
		}
		return "nano_banana_pro:2k", 0, nil
	case "seedream_4_5", "seedream_4_5_edit":
		return "seedream_4_5:image", 0, nil
	case "z_image":
		return "z_image:image", 0, nil
	case "gpt_image_1_5":
		photo, err := photoOpts(modelID, opts)
		if err != nil {
			return "", 0, err
		}
		if photo.Quality == "high" {
			return "gpt_image_1_5:high", 0, nil
		}
		return "gpt_image_1_5:medium", 0, nil
	case "flux_2_pro":
		photo, err := photoOpts(modelID, opts)
		if err != nil {
			return "", 0, err
		}
		if photo.Quality == "2k" {
			return "flux_2_pro:2k", 0, nil
		}
		return "flux_2_pro:1k", 0, nil
	case "grok_imagine":
		return "grok_imagine:i2i_run", 0, nil

	// Video, fixed price
	case "veo_3_1_fast", "veo_3_1", "veo_3_1_quality", "veo":
		video, err := videoOpts(modelID, opts)
		if err != nil {
			return "", 0, err
		}
		if video.Extend {
			return "veo_3_1_fast:extend", 0, nil
		}
		return "veo_3_1_fast:clip", 0, nil
	case "sora_2", "sora":
		return "sora_2:clip", 0, nil
	case "grok_video":
		return "grok_video:6s", 0, nil

	// Kling clip variants
	case "kling_2_6":
		video, err := videoOpts(modelID, opts)
		if err != nil {
			return "", 0, err
		}
		audioSuffix := "no_audio"
		if video.Audio {
			audioSuffix = "audio"
		}
		sku := fmt.Sprintf("kling_2_6:%ds:%s:%s", clipDuration(video), clipResolution(video), audioSuffix)
		return sku, 0, nil
	case "kling_2_5":
		video, err := videoOpts(modelID, opts)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("kling_2_5:%ds:%s", clipDuration(video), clipResolution(video)), 0, nil
	case "kling_2_1":
		video, err := videoOpts(modelID, opts)
		if err != nil {
			return "", 0, err
		}
		tier := video.QualityTier
		if tier == "" {
			tier = "standard"
		}
		return fmt.Sprintf("kling_2_1:%s:%ds", tier, clipDuration(video)), 0, nil
	case "wan_2_6":
		video, err := videoOpts(modelID, opts)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("wan_2_6:%s:%ds", clipResolution(video), clipDuration(video)), 0, nil

	// Motion control, billed per source second
	case "kling_motion_control":
		motion, ok := opts.(MotionControlOptions)
		if !ok {
			return "", 0, optionsMismatch(modelID, opts)
		}
		seconds := billableSeconds(motion.RawDurationSec, motionControlBounds)
		if seconds == 0 {
			return "", 0, errors.New(errors.CodeValidation, "motion control requires a positive source duration")
		}
		resolution := motion.Resolution
		if resolution == "" {
			resolution = "720p"
		}
		return fmt.Sprintf("kling_motion_control:%s:per_sec", resolution), seconds, nil

	// Lip sync
	case "kling_ai_avatar":
		return "kling_ai_avatar:standard", 0, nil
	case "infinitalk_480p", "infinitalk_720p":
		lip, ok := opts.(LipSyncOptions)
		if !ok {
			return "", 0, optionsMismatch(modelID, opts)
		}
		seconds := billableSeconds(lip.AudioDurationSec, lipSyncBounds)
		if seconds == 0 {
			return "", 0, errors.New(errors.CodeValidation, "lip sync requires a positive audio duration")
		}
		return modelID + ":per_sec", seconds, nil
	}

	return "", 0, errors.New(errors.CodeValidation, fmt.Sprintf("unknown model %q", modelID))
}

// billableSeconds converts a raw duration into whole billed seconds:
// round up, then clamp into the family's bounds. A non-positive raw
// duration bills zero seconds and the caller must reject it.
func billableSeconds(raw float64, b secondsBounds) int {
	if raw <= 0 {
		return 0
	}
	seconds := int(math.Ceil(raw))
	if seconds < b.Min {
		seconds = b.Min
	}
	if seconds > b.Max {
		seconds = b.Max
	}
	return seconds
}

func photoOpts(modelID string, opts Options) (PhotoOptions, error) {
	photo, ok := opts.(PhotoOptions)
	if !ok {
		return PhotoOptions{}, optionsMismatch(modelID, opts)
	}
	return photo, nil
}

func videoOpts(modelID string, opts Options) (VideoOptions, error) {
	video, ok := opts.(VideoOptions)
	if !ok {
		return VideoOptions{}, optionsMismatch(modelID, opts)
	}
	return video, nil
}

func clipDuration(v VideoOptions) int {
	if v.DurationSec <= 0 {
		return 5
	}
	return v.DurationSec
}

func clipResolution(v VideoOptions) string {
	if v.Resolution == "" {
		return "720p"
	}
	return v.Resolution
}

func optionsMismatch(modelID string, opts Options) error {
	family := "none"
	if opts != nil {
		family = opts.family()
	}
	return errors.New(errors.CodeValidation, fmt.Sprintf("model %q does not accept %s options", modelID, family))
}
