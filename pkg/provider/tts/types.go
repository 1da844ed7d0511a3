package tts

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// VoiceProfile describes the voice used to speak a reply.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier. For blended voices it is
	// the rendering produced by [FormatBlend].
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Language is the language code passed to the backend (e.g., "pt", "p").
	Language string

	// Speed adjusts speaking rate (0.5–2.0, 0 or 1.0 = default).
	Speed float64

	// Blend lists the component voices of a mixed voice. Nil for a single
	// voice.
	Blend []VoiceWeight

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string
}

// VoiceWeight is one component of a blended voice.
type VoiceWeight struct {
	Voice  string
	Weight float64
}

// Voices returns the component voices of p. A profile without a blend yields
// its ID with weight 1.
func (p VoiceProfile) Voices() []VoiceWeight {
	if len(p.Blend) > 0 {
		return p.Blend
	}
	return []VoiceWeight{{Voice: p.ID, Weight: 1}}
}

// CacheKey identifies the voice for caching purposes.
func (p VoiceProfile) CacheKey() string {
	return p.ID + "_" + p.Language
}

var blendPartRe = regexp.MustCompile(`^([\p{L}\p{N}_\-]+)(?:\s+(\d+(?:[.,]\d+)?)\s*%)?$`)

// ParseBlend parses a voice configuration string. Accepted forms are a single
// voice name ("pf_dora") and weighted blends joined by "mais" or "+"
// ("pf_dora 80% mais if_sara 20%"). Weights are normalized to sum to 1; a
// component without a percentage shares the remainder equally.
//
// A single voice yields a nil blend.
func ParseBlend(s string) (id string, blend []VoiceWeight, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil, errors.New("tts: empty voice")
	}

	s = strings.ReplaceAll(s, " mais ", "+")
	var (
		parts      []VoiceWeight
		total      float64
		unweighted int
	)
	for raw := range strings.SplitSeq(s, "+") {
		raw = strings.TrimSpace(raw)
		m := blendPartRe.FindStringSubmatch(raw)
		if m == nil {
			return "", nil, fmt.Errorf("tts: invalid voice component %q", raw)
		}
		w := -1.0
		if m[2] != "" {
			w, err = strconv.ParseFloat(strings.ReplaceAll(m[2], ",", "."), 64)
			if err != nil {
				return "", nil, fmt.Errorf("tts: invalid weight in %q: %w", raw, err)
			}
			total += w
		} else {
			unweighted++
		}
		parts = append(parts, VoiceWeight{Voice: m[1], Weight: w})
	}

	if len(parts) == 1 {
		return parts[0].Voice, nil, nil
	}

	share := 0.0
	if unweighted > 0 {
		share = max(100-total, 0) / float64(unweighted)
		total += share * float64(unweighted)
	}
	if total <= 0 {
		return "", nil, fmt.Errorf("tts: voice weights in %q sum to zero", s)
	}
	for i := range parts {
		if parts[i].Weight < 0 {
			parts[i].Weight = share
		}
		parts[i].Weight /= total
	}
	return FormatBlend(parts), parts, nil
}

// FormatBlend renders a blend in the "voice(weight)+voice(weight)" syntax
// understood by Kokoro servers, e.g. "pf_dora(0.8)+if_sara(0.2)".
func FormatBlend(blend []VoiceWeight) string {
	var b strings.Builder
	for i, v := range blend {
		if i > 0 {
			b.WriteByte('+')
		}
		b.WriteString(v.Voice)
		b.WriteByte('(')
		b.WriteString(strconv.FormatFloat(v.Weight, 'f', -1, 64))
		b.WriteByte(')')
	}
	return b.String()
}
