package config

import (
	"fmt"
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (providers, audio devices, listen parameters, memory) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PersonaChanged covers the assistant name, greeting, system prompt,
	// language, temperature and token limit.
	PersonaChanged bool

	// GrammarChanged covers the wake and stop word lists.
	GrammarChanged bool

	// VoiceChanged covers the voice id, language and speed.
	VoiceChanged bool

	InactivityChanged bool
	NewInactivity     time.Duration

	// RestartRequired lists sections that changed but cannot be applied
	// without a restart.
	RestartRequired []string
}

// Changed reports whether anything hot-reloadable changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PersonaChanged || d.GrammarChanged || d.VoiceChanged || d.InactivityChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oa, na := old.Assistant, new.Assistant
	if oa.Name != na.Name || oa.Greeting != na.Greeting || oa.SystemPrompt != na.SystemPrompt ||
		oa.Language != na.Language || oa.Temperature != na.Temperature || oa.MaxTokens != na.MaxTokens {
		d.PersonaChanged = true
	}
	if oa.InactivityTimeout != na.InactivityTimeout {
		d.InactivityChanged = true
		d.NewInactivity = na.InactivityTimeout
	}
	// The name feeds the default grammar, so a rename also changes it.
	if !grammarEqual(old.Grammar, new.Grammar) || oa.Name != na.Name {
		d.GrammarChanged = true
	}

	ov, nv := old.Voice, new.Voice
	if ov.ID != nv.ID || ov.Language != nv.Language || ov.Speed != nv.Speed {
		d.VoiceChanged = true
	}

	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Listen != new.Listen {
		d.RestartRequired = append(d.RestartRequired, "listen")
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Memory != new.Memory {
		d.RestartRequired = append(d.RestartRequired, "memory")
	}
	if old.Avatar != new.Avatar {
		d.RestartRequired = append(d.RestartRequired, "avatar")
	}
	if old.Playback.ChunkSize != new.Playback.ChunkSize || old.Playback.IsInterruptible() != new.Playback.IsInterruptible() ||
		old.Playback.InterruptionWindow != new.Playback.InterruptionWindow || old.Playback.PollInterval != new.Playback.PollInterval ||
		old.Playback.RecordDir != new.Playback.RecordDir {
		d.RestartRequired = append(d.RestartRequired, "playback")
	}
	if ov.Cache != nv.Cache || ov.Crossfade != nv.Crossfade || ov.Parallelism != nv.Parallelism {
		d.RestartRequired = append(d.RestartRequired, "voice.cache")
	}

	return d
}

func grammarEqual(a, b GrammarConfig) bool {
	return slices.Equal(a.WakeWords, b.WakeWords) &&
		slices.Equal(a.ContextWords, b.ContextWords) &&
		slices.Equal(a.Prefixes, b.Prefixes) &&
		slices.Equal(a.StopWords, b.StopWords) &&
		slices.Equal(a.NameStopWords, b.NameStopWords) &&
		a.FuzzyThreshold == b.FuzzyThreshold
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) && entryEqual(a.STT, b.STT) && entryEqual(a.TTS, b.TTS) &&
		entryEqual(a.VAD, b.VAD) && entryEqual(a.Audio, b.Audio) &&
		slices.EqualFunc(a.Fallbacks.LLM, b.Fallbacks.LLM, entryEqual) &&
		slices.EqualFunc(a.Fallbacks.STT, b.Fallbacks.STT, entryEqual) &&
		slices.EqualFunc(a.Fallbacks.TTS, b.Fallbacks.TTS, entryEqual)
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model || len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(w) {
			return false
		}
	}
	return true
}
