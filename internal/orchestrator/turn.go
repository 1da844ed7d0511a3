package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/chica/internal/attention"
	"github.com/MrWong99/chica/internal/observe"
	"github.com/MrWong99/chica/internal/playback"
	"github.com/MrWong99/chica/internal/reply"
	"github.com/MrWong99/chica/internal/vad"
	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/memory"
	"github.com/MrWong99/chica/pkg/provider/llm"
	"github.com/MrWong99/chica/pkg/provider/stt"
)

// turn processes one utterance end to end. Every collaborator error is
// logged and ends the turn.
func (o *Orchestrator) turn(ctx context.Context, u vad.Utterance) {
	cfg := o.Config()
	start := time.Now()

	if err := cfg.Filter.Accept(u); err != nil {
		result := "too_short"
		if errors.Is(err, vad.ErrTooQuiet) {
			result = "too_quiet"
		}
		o.metrics.RecordUtterance(ctx, result)
		slog.Debug("orchestrator: utterance rejected", "err", err)
		return
	}
	o.metrics.RecordUtterance(ctx, "accepted")
	o.metrics.UtteranceDuration.Record(ctx, u.Duration().Seconds())

	ctx, span := observe.StartTurn(ctx, o.sessionID, o.seq.Add(1))
	defer span.End()
	log := observe.Logger(ctx)

	clip := u.Clip()
	o.record(cfg, "utterance-*.wav", clip, log)

	text, err := o.transcribe(ctx, cfg, clip)
	if err != nil {
		observe.FailSpan(span, "stt", err)
		log.Warn("orchestrator: transcription failed", "err", err)
		return
	}
	if text == "" {
		log.Debug("orchestrator: nothing recognised")
		return
	}
	log.Info("orchestrator: heard", "text", text)

	decision := o.deps.Attention.Handle(text)
	span.SetAttributes(attribute.String("decision", decision.String()))
	if decision != attention.Ignored {
		o.journal(ctx, memory.TranscriptEntry{
			Role:     memory.RoleUser,
			Text:     text,
			Decision: decision.String(),
			Duration: u.Duration(),
		})
	}

	switch decision {
	case attention.Ignored:
		return

	case attention.Woken:
		o.metrics.RecordAttention(ctx, "woken")
		log.Info("orchestrator: woke up")
		if cfg.Greeting != "" {
			o.speak(ctx, cfg, cfg.Greeting, log)
		}

	case attention.Stopped:
		o.metrics.RecordAttention(ctx, "stopped")
		log.Info("orchestrator: stop command")
		return

	case attention.Converse:
		answer, err := o.think(ctx, cfg, text)
		if err != nil {
			observe.FailSpan(span, "llm", err)
			log.Warn("orchestrator: llm failed", "err", err)
			return
		}
		o.deps.Attention.Append(text, answer)
		log.Info("orchestrator: reply", "text", answer)
		o.speak(ctx, cfg, answer, log)
		// A reply that cleans to nothing is never spoken but still counts as
		// activity.
		o.deps.Attention.Touch()
	}

	o.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
}

func (o *Orchestrator) transcribe(ctx context.Context, cfg Config, clip audio.Clip) (string, error) {
	ctx, span := observe.StartSpan(ctx, "stt.transcribe")
	defer span.End()

	start := time.Now()
	tr, err := o.deps.STT.Transcribe(ctx, stt.Request{Audio: clip, Language: cfg.Language})
	o.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		o.providerResult(ctx, o.deps.Names.STT, "stt", err)
		return "", err
	}
	o.providerResult(ctx, o.deps.Names.STT, "stt", nil)
	return tr.Text, nil
}

// think asks the LLM for a reply and reduces it to the text to speak.
func (o *Orchestrator) think(ctx context.Context, cfg Config, text string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "llm.complete")
	defer span.End()

	msgs := append(o.deps.Attention.Recent(), llm.Message{Role: llm.RoleUser, Content: text})
	start := time.Now()
	resp, err := o.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	})
	o.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		o.providerResult(ctx, o.deps.Names.LLM, "llm", err)
		return "", err
	}
	o.providerResult(ctx, o.deps.Names.LLM, "llm", nil)
	if resp == nil {
		resp = &llm.CompletionResponse{}
	}

	content, inline := reply.Split(resp.Content)
	reasoning := resp.Reasoning
	if reasoning == "" {
		reasoning = inline
	}
	span.SetAttributes(
		attribute.Int("tokens.prompt", resp.Usage.PromptTokens),
		attribute.Int("tokens.completion", resp.Usage.CompletionTokens),
		attribute.Bool("reduced", content == ""),
	)
	return reply.Reduce(content, reasoning), nil
}

// speak cleans, synthesizes and plays text. The activity timer is touched
// before synthesis and after playback so that speaking never counts as
// inactivity.
func (o *Orchestrator) speak(ctx context.Context, cfg Config, text string, log *slog.Logger) {
	spoken := reply.CleanForSpeech(text)
	if spoken == "" {
		log.Debug("orchestrator: nothing to say after cleaning")
		return
	}
	o.deps.Attention.Touch()
	defer o.deps.Attention.Touch()

	ctx, span := observe.StartSpan(ctx, "tts.speak")
	defer span.End()

	start := time.Now()
	clip, err := o.deps.TTS.Synthesize(ctx, spoken, cfg.Voice)
	o.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		o.providerResult(ctx, o.deps.Names.TTS, "tts", err)
		observe.FailSpan(span, "tts", err)
		log.Warn("orchestrator: synthesis failed", "err", err)
		return
	}
	o.providerResult(ctx, o.deps.Names.TTS, "tts", nil)
	if clip.IsEmpty() {
		return
	}

	req := playback.Request{Clip: clip}
	if path := o.record(cfg, "reply-*.wav", clip, log); path != "" {
		req = playback.Request{Path: path}
	}

	o.metrics.Speaking.Add(ctx, 1)
	outcome, err := o.deps.Player.Play(ctx, req)
	o.metrics.Speaking.Add(ctx, -1)
	if err != nil {
		o.metrics.RecordPlayback(ctx, "error")
		log.Warn("orchestrator: playback failed", "err", err)
		return
	}
	o.metrics.RecordPlayback(ctx, outcome.String())
	if outcome == playback.Cancelled {
		o.metrics.Interruptions.Add(ctx, 1)
		log.Info("orchestrator: reply interrupted")
	}

	entry := memory.TranscriptEntry{
		Role:        memory.RoleAssistant,
		Text:        spoken,
		Interrupted: outcome == playback.Cancelled,
		Duration:    clip.Duration(),
	}
	if spoken != text {
		entry.RawText = text
	}
	o.journal(ctx, entry)
}

// record writes clip to cfg.RecordDir and returns the file path, or "" when
// recording is disabled or fails.
func (o *Orchestrator) record(cfg Config, pattern string, clip audio.Clip, log *slog.Logger) string {
	if cfg.RecordDir == "" {
		return ""
	}
	path, err := audio.WriteTempWAV(cfg.RecordDir, pattern, clip)
	if err != nil {
		log.Warn("orchestrator: recording failed", "err", err)
		return ""
	}
	log.Debug("orchestrator: recorded", "path", path)
	return path
}

func (o *Orchestrator) journal(ctx context.Context, e memory.TranscriptEntry) {
	if o.deps.Journal == nil {
		return
	}
	e.ID = memory.NewEntryID()
	e.Timestamp = time.Now()
	if err := o.deps.Journal.WriteEntry(ctx, o.sessionID, e); err != nil {
		slog.Warn("orchestrator: journal write failed", "err", err)
	}
}

func (o *Orchestrator) providerResult(ctx context.Context, name, kind string, err error) {
	if err != nil {
		o.metrics.RecordProviderRequest(ctx, name, kind, "error")
		o.metrics.RecordProviderError(ctx, name, kind)
		return
	}
	o.metrics.RecordProviderRequest(ctx, name, kind, "ok")
}
