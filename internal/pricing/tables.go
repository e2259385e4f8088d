package pricing

// Version identifies the active price table. Every quote carries it so
// historical charges stay auditable after the table changes.
const Version = "2026-01-27"

// priceStars is the single source of truth for star prices. Every SKU
// must have an explicit entry; a missing entry is a hard error, never a
// zero price.
var priceStars = map[string]int{
	// Photo
	"nano_banana:image":    9,
	"nano_banana_pro:2k":   17,
	"nano_banana_pro:4k":   25,
	"seedream_4_5:image":   10,
	"z_image:image":        5,
	"gpt_image_1_5:medium": 5,
	"gpt_image_1_5:high":   35,
	"flux_2_pro:1k":        10,
	"flux_2_pro:2k":        12,
	"grok_imagine:i2i_run": 5,

	// Video, fixed price
	"veo_3_1_fast:clip":   50,
	"veo_3_1_fast:extend": 60,
	"sora_2:clip":         50,
	"grok_video:6s":       34,

	// Kling 2.6
	"kling_2_6:5s:720p:no_audio":   92,
	"kling_2_6:10s:720p:no_audio":  184,
	"kling_2_6:5s:720p:audio":      184,
	"kling_2_6:10s:720p:audio":     367,
	"kling_2_6:5s:1080p:no_audio":  139,
	"kling_2_6:10s:1080p:no_audio": 277,

	// Kling 2.5
	"kling_2_5:5s:720p":   70,
	"kling_2_5:10s:720p":  140,
	"kling_2_5:5s:1080p":  105,
	"kling_2_5:10s:1080p": 210,

	// Kling 2.1 tiers
	"kling_2_1:standard:5s":  42,
	"kling_2_1:standard:10s": 84,
	"kling_2_1:pro:5s":       84,
	"kling_2_1:pro:10s":      167,
	"kling_2_1:master:5s":    267,
	"kling_2_1:master:10s":   534,

	// WAN 2.6
	"wan_2_6:720p:5s":   117,
	"wan_2_6:720p:10s":  234,
	"wan_2_6:720p:15s":  350,
	"wan_2_6:1080p:5s":  234,
	"wan_2_6:1080p:10s": 467,
	"wan_2_6:1080p:15s": 700,

	// Motion control, per second
	"kling_motion_control:720p:per_sec":  10,
	"kling_motion_control:1080p:per_sec": 20,

	// Lip sync
	"kling_ai_avatar:standard": 50,
	"infinitalk_480p:per_sec":  3,
	"infinitalk_720p:per_sec":  12,
}

// secondsBounds clamps raw durations for per-second billed families.
// Motion control tracks the source clip, lip sync tracks the driving
// audio track.
type secondsBounds struct {
	Min int
	Max int
}

var (
	motionControlBounds = secondsBounds{Min: 1, Max: 15}
	lipSyncBounds       = secondsBounds{Min: 1, Max: 30}
)
