// Package transcription turns utterances into assistant prompts: transcribe
// with whisper, forward the text to the AI bot and log the reply.
package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"assistant-voice-pipeline/utterance"
)

// Transcriber is satisfied by speech_to_text.Interface.
type Transcriber interface {
	Transcribe(u *utterance.Utterance) (string, error)
}

// PromptSender is satisfied by ai_bot.AIBotAPI.
type PromptSender interface {
	SendPrompt(ctx context.Context, prompt string) (string, error)
}

type Config struct {
	STTEngine Transcriber
	// Bot is optional; without it transcriptions are only logged.
	Bot PromptSender
	// RecordDir keeps a WAV copy of every utterance when set.
	RecordDir string
	FileSys   afero.Fs
	Logger    *slog.Logger
}

type Handler struct {
	sttEngine Transcriber
	bot       PromptSender
	recordDir string
	fileSys   afero.Fs
	logger    *slog.Logger
}

func New(cfg *Config) (*Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.STTEngine == nil {
		return nil, fmt.Errorf("stt engine is nil")
	}

	if cfg.RecordDir != "" && cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		sttEngine: cfg.STTEngine,
		bot:       cfg.Bot,
		recordDir: cfg.RecordDir,
		fileSys:   cfg.FileSys,
		logger:    logger,
	}, nil
}

// Handle implements utterance_sink.Handler.
func (h *Handler) Handle(ctx context.Context, u *utterance.Utterance) error {
	if h.recordDir != "" {
		if err := h.record(u); err != nil {
			h.logger.Warn("could not record utterance", "error", err)
		}
	}

	start := time.Now()

	text, err := h.sttEngine.Transcribe(u)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	h.logger.Info("transcription finished", "took", time.Since(start), "audio", u.Duration())

	if text == "" {
		h.logger.Info("nothing detected in utterance")

		return nil
	}

	h.logger.Info("> " + text)

	if h.bot == nil {
		return nil
	}

	start = time.Now()

	reply, err := h.bot.SendPrompt(ctx, text)
	if err != nil {
		return fmt.Errorf("send prompt: %w", err)
	}

	h.logger.Info("response received", "took", time.Since(start), "response", reply)

	return nil
}

func (h *Handler) record(u *utterance.Utterance) error {
	data, err := u.EncodeWAV()
	if err != nil {
		return err
	}

	if err = h.fileSys.MkdirAll(h.recordDir, 0o755); err != nil {
		return err
	}

	waveFilename := filepath.Join(h.recordDir, "utterance"+strconv.FormatInt(u.CapturedAt().UnixNano(), 10)+".wav")

	if err = afero.WriteFile(h.fileSys, waveFilename, data, 0o644); err != nil {
		return err
	}

	h.logger.Debug("utterance recorded", "file", waveFilename)

	return nil
}
