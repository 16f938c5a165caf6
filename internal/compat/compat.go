// Package compat decides which target accounts can take a piece of content.
//
// Check is pure: it reads only the static capability table and its inputs.
package compat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// Capability is what one platform accepts. Zero bounds are not checked.
type Capability struct {
	Kinds        []models.ContentKind
	MaxImages    int
	ImageFormats []string
	VideoFormats []string
	MinVideoSec  float64
	MaxVideoSec  float64
	MinAspect    float64
	MaxAspect    float64
	MaxCaption   int
}

var capabilities = map[string]Capability{
	models.PlatformInstagram: {
		Kinds:        []models.ContentKind{models.ContentKindImageSet, models.ContentKindVideo},
		MaxImages:    10,
		ImageFormats: []string{"jpg", "jpeg"},
		VideoFormats: []string{"mp4", "mov"},
		MinVideoSec:  3,
		MaxVideoSec:  900,
		MinAspect:    0.5625,
		MaxAspect:    1.91,
		MaxCaption:   2200,
	},
	models.PlatformTiktok: {
		Kinds:        []models.ContentKind{models.ContentKindImageSet, models.ContentKindVideo},
		MaxImages:    35,
		ImageFormats: []string{"jpg", "jpeg", "webp"},
		VideoFormats: []string{"mp4", "mov", "webm"},
		MinVideoSec:  3,
		MaxVideoSec:  600,
		MaxCaption:   2200,
	},
	models.PlatformYoutube: {
		Kinds:        []models.ContentKind{models.ContentKindVideo},
		VideoFormats: []string{"mp4", "mov", "avi", "wmv", "webm", "mkv", "flv", "3gp", "mpeg"},
		MinVideoSec:  1,
		MaxVideoSec:  43200,
		MaxCaption:   5000,
	},
	models.PlatformLinkedin: {
		Kinds:        []models.ContentKind{models.ContentKindText, models.ContentKindImageSet, models.ContentKindVideo},
		MaxImages:    20,
		ImageFormats: []string{"jpg", "jpeg", "png", "gif"},
		VideoFormats: []string{"mp4"},
		MinVideoSec:  3,
		MaxVideoSec:  1800,
		MaxCaption:   3000,
	},
}

// Lookup returns the capability entry for a platform.
func Lookup(platform string) (Capability, bool) {
	c, ok := capabilities[platform]
	return c, ok
}

// Platforms lists the platforms with a capability entry, sorted.
func Platforms() []string {
	out := make([]string, 0, len(capabilities))
	for p := range capabilities {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type Rejection struct {
	Account  *models.SocialAccount
	FileType string
	Reason   string
}

// Partition is the result of Check. Eligible and Incompatible keep input order.
type Partition struct {
	Eligible     []*models.SocialAccount
	Incompatible []Rejection
	// ByPlatform groups distinct reasons so callers can show one warning per platform.
	ByPlatform map[string][]string
}

func (p Partition) IsCompatible() bool {
	return len(p.Incompatible) == 0
}

// AffectedPlatforms returns the platforms with at least one rejected account, sorted.
func (p Partition) AffectedPlatforms() []string {
	out := make([]string, 0, len(p.ByPlatform))
	for platform := range p.ByPlatform {
		out = append(out, platform)
	}
	sort.Strings(out)
	return out
}

// Reason returns the rejection reason for an account id, if any.
func (p Partition) Reason(accountID int64) (string, bool) {
	for _, r := range p.Incompatible {
		if r.Account.ID == accountID {
			return r.Reason, true
		}
	}
	return "", false
}

// Report renders the caller-facing compatibility warning.
func (p Partition) Report() transfer.CompatibilityReport {
	report := transfer.CompatibilityReport{
		IsCompatible:      p.IsCompatible(),
		AffectedPlatforms: p.AffectedPlatforms(),
		IncompatibleItems: []transfer.IncompatibleItem{},
	}
	seen := make(map[string]bool)
	for _, r := range p.Incompatible {
		key := r.FileType + "\x00" + r.Reason
		if seen[key] {
			continue
		}
		seen[key] = true
		report.IncompatibleItems = append(report.IncompatibleItems, transfer.IncompatibleItem{
			FileType: r.FileType,
			Reason:   r.Reason,
		})
	}
	return report
}

// Check partitions accounts by whether content can be published to their platform.
// Accounts on platforms without a capability entry are always incompatible.
func Check(content models.Content, accounts []*models.SocialAccount) Partition {
	p := Partition{ByPlatform: make(map[string][]string)}
	for _, acc := range accounts {
		fileType, reason := evaluate(content, acc.Platform)
		if reason == "" {
			p.Eligible = append(p.Eligible, acc)
			continue
		}
		p.Incompatible = append(p.Incompatible, Rejection{Account: acc, FileType: fileType, Reason: reason})
		if !contains(p.ByPlatform[acc.Platform], reason) {
			p.ByPlatform[acc.Platform] = append(p.ByPlatform[acc.Platform], reason)
		}
	}
	return p
}

// evaluate returns an empty reason when content fits the platform.
func evaluate(content models.Content, platform string) (string, string) {
	kind := string(content.Kind)
	c, ok := capabilities[platform]
	if !ok {
		return kind, fmt.Sprintf("%s is not a supported platform", displayName(platform))
	}
	if !containsKind(c.Kinds, content.Kind) {
		return kind, fmt.Sprintf("%s does not support %s posts", displayName(platform), kindLabel(content.Kind))
	}

	switch content.Kind {
	case models.ContentKindText:
		if len(content.Media) > 0 {
			return kind, "text posts cannot carry media"
		}
	case models.ContentKindImageSet:
		if len(content.Media) == 0 {
			return kind, "image posts need at least one image"
		}
		if c.MaxImages > 0 && len(content.Media) > c.MaxImages {
			return kind, fmt.Sprintf("%s allows at most %d images per post", displayName(platform), c.MaxImages)
		}
		for _, m := range content.Media {
			if m.IsVideo() {
				return m.Format, "image posts cannot contain video"
			}
			if !contains(c.ImageFormats, normalizeFormat(m.Format)) {
				return m.Format, fmt.Sprintf("%s does not accept %s images", displayName(platform), m.Format)
			}
			if reason := checkAspect(c, m); reason != "" {
				return m.Format, reason
			}
		}
	case models.ContentKindVideo:
		if len(content.Media) != 1 || !content.Media[0].IsVideo() {
			return kind, "video posts need exactly one video"
		}
		m := content.Media[0]
		if !contains(c.VideoFormats, normalizeFormat(m.Format)) {
			return m.Format, fmt.Sprintf("%s does not accept %s videos", displayName(platform), m.Format)
		}
		if m.DurationSec > 0 {
			if c.MinVideoSec > 0 && m.DurationSec < c.MinVideoSec {
				return m.Format, fmt.Sprintf("%s videos must be at least %gs long", displayName(platform), c.MinVideoSec)
			}
			if c.MaxVideoSec > 0 && m.DurationSec > c.MaxVideoSec {
				return m.Format, fmt.Sprintf("%s videos must be at most %gs long", displayName(platform), c.MaxVideoSec)
			}
		}
		if reason := checkAspect(c, m); reason != "" {
			return m.Format, reason
		}
	default:
		return kind, fmt.Sprintf("unknown content kind %q", kind)
	}

	if c.MaxCaption > 0 && len([]rune(content.CaptionFor(platform))) > c.MaxCaption {
		return "caption", fmt.Sprintf("%s captions are limited to %d characters", displayName(platform), c.MaxCaption)
	}
	return "", ""
}

func checkAspect(c Capability, m models.MediaItem) string {
	ratio := m.AspectRatio()
	if ratio == 0 {
		return ""
	}
	if (c.MinAspect > 0 && ratio < c.MinAspect) || (c.MaxAspect > 0 && ratio > c.MaxAspect) {
		return fmt.Sprintf("aspect ratio %.2f is outside %.2f-%.2f", ratio, c.MinAspect, c.MaxAspect)
	}
	return ""
}

func normalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(format), ".")
}

func kindLabel(k models.ContentKind) string {
	switch k {
	case models.ContentKindText:
		return "text-only"
	case models.ContentKindImageSet:
		return "image"
	}
	return string(k)
}

func displayName(platform string) string {
	switch platform {
	case models.PlatformTiktok:
		return "TikTok"
	case models.PlatformYoutube:
		return "YouTube"
	case models.PlatformLinkedin:
		return "LinkedIn"
	case "":
		return "unknown platform"
	}
	return strings.ToUpper(platform[:1]) + platform[1:]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsKind(list []models.ContentKind, k models.ContentKind) bool {
	for _, v := range list {
		if v == k {
			return true
		}
	}
	return false
}
