package pricing

import (
	"testing"

	"github.com/starfall-ai/starfall-backend/pkg/errors"
)

func TestBillableSeconds(t *testing.T) {
	bounds := secondsBounds{Min: 1, Max: 15}
	cases := []struct {
		name string
		raw  float64
		want int
	}{
		{"fractional rounds up", 4.2, 5},
		{"above max clamps", 99, 15},
		{"zero bills nothing", 0, 0},
		{"negative bills nothing", -3, 0},
		{"sub-second rounds to min", 0.2, 1},
		{"exact integer unchanged", 10, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := billableSeconds(tc.raw, bounds); got != tc.want {
				t.Fatalf("billableSeconds(%v) = %d, want %d", tc.raw, got, tc.want)
			}
		})
	}
}

func TestComputeFixedPriceSKUs(t *testing.T) {
	cases := []struct {
		name    string
		modelID string
		opts    Options
		sku     string
		stars   int
	}{
		{"nano banana", "nano-banana", nil, "nano_banana:image", 9},
		{"nano banana pro 4k", "nano-banana-pro", PhotoOptions{Quality: "4k"}, "nano_banana_pro:4k", 25},
		{"nano banana pro default", "nano-banana-pro", PhotoOptions{}, "nano_banana_pro:2k", 17},
		{"gpt image high", "gpt-image-1.5", PhotoOptions{Quality: "high"}, "gpt_image_1_5:high", 35},
		{"flux 2k", "flux.2.pro", PhotoOptions{Quality: "2k"}, "flux_2_pro:2k", 12},
		{"veo clip", "veo-3.1-fast", VideoOptions{}, "veo_3_1_fast:clip", 50},
		{"veo legacy alias", "veo", VideoOptions{}, "veo_3_1_fast:clip", 50},
		{"veo extend", "veo-3.1-fast", VideoOptions{Extend: true}, "veo_3_1_fast:extend", 60},
		{"sora", "sora-2", nil, "sora_2:clip", 50},
		{"kling 2.6 defaults", "kling-2.6", VideoOptions{}, "kling_2_6:5s:720p:no_audio", 92},
		{"kling 2.6 10s 720p audio", "kling-2.6", VideoOptions{DurationSec: 10, Resolution: "720p", Audio: true}, "kling_2_6:10s:720p:audio", 367},
		{"kling 2.5 1080p", "kling-2.5", VideoOptions{DurationSec: 10, Resolution: "1080p"}, "kling_2_5:10s:1080p", 210},
		{"kling 2.1 master", "kling-2.1", VideoOptions{DurationSec: 10, QualityTier: "master"}, "kling_2_1:master:10s", 534},
		{"wan 15s 1080p", "wan-2.6", VideoOptions{DurationSec: 15, Resolution: "1080p"}, "wan_2_6:1080p:15s", 700},
		{"avatar", "kling-ai-avatar", nil, "kling_ai_avatar:standard", 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quote, err := Compute(tc.modelID, tc.opts)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if quote.SKU != tc.sku {
				t.Fatalf("sku = %q, want %q", quote.SKU, tc.sku)
			}
			if quote.PriceStars != tc.stars {
				t.Fatalf("price = %d, want %d", quote.PriceStars, tc.stars)
			}
			if quote.PricingVersion != Version {
				t.Fatalf("version = %q, want %q", quote.PricingVersion, Version)
			}
		})
	}
}

func TestComputeMotionControlPerSecond(t *testing.T) {
	// 6.01s rounds up to 7 billable seconds at 10 stars/s for 720p.
	quote, err := Compute("kling-motion-control", MotionControlOptions{RawDurationSec: 6.01, Resolution: "720p"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if quote.SKU != "kling_motion_control:720p:per_sec" {
		t.Fatalf("sku = %q", quote.SKU)
	}
	if quote.PriceStars != 70 {
		t.Fatalf("price = %d, want 70", quote.PriceStars)
	}

	// The 1080p rate table is independent of 720p.
	quote, err = Compute("kling-motion-control", MotionControlOptions{RawDurationSec: 6.01, Resolution: "1080p"})
	if err != nil {
		t.Fatalf("Compute 1080p: %v", err)
	}
	if quote.PriceStars != 140 {
		t.Fatalf("1080p price = %d, want 140", quote.PriceStars)
	}
}

func TestComputeLipSyncPerSecond(t *testing.T) {
	quote, err := Compute("infinitalk-480p", LipSyncOptions{AudioDurationSec: 4.2})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if quote.SKU != "infinitalk_480p:per_sec" {
		t.Fatalf("sku = %q", quote.SKU)
	}
	if quote.PriceStars != 15 {
		t.Fatalf("price = %d, want 15 (5s x 3)", quote.PriceStars)
	}

	quote, err = Compute("infinitalk-720p", LipSyncOptions{AudioDurationSec: 2})
	if err != nil {
		t.Fatalf("Compute 720p: %v", err)
	}
	if quote.PriceStars != 24 {
		t.Fatalf("720p price = %d, want 24 (2s x 12)", quote.PriceStars)
	}
}

func TestComputeRejectsZeroDuration(t *testing.T) {
	_, err := Compute("kling-motion-control", MotionControlOptions{RawDurationSec: 0})
	if !errors.HasCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = Compute("infinitalk-480p", LipSyncOptions{AudioDurationSec: 0})
	if !errors.HasCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestComputeUnknownModel(t *testing.T) {
	_, err := Compute("midjourney-v9", nil)
	if !errors.HasCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestComputeRejectsMismatchedOptions(t *testing.T) {
	_, err := Compute("kling-2.6", PhotoOptions{Quality: "2k"})
	if !errors.HasCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestComputeUnpricedVariant(t *testing.T) {
	// 10s 1080p with audio has no table entry; it must fail hard, not
	// price at zero.
	_, err := Compute("kling-2.6", VideoOptions{DurationSec: 10, Resolution: "1080p", Audio: true})
	if !errors.HasCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	first, err := Compute("kling-2.6", VideoOptions{DurationSec: 10, Resolution: "720p"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	second, err := Compute("kling-2.6", VideoOptions{DurationSec: 10, Resolution: "720p"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if *first != *second {
		t.Fatalf("quotes differ: %+v vs %+v", first, second)
	}
}
