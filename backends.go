package main

import (
	"context"
	"log/slog"

	"github.com/spf13/afero"

	"assistant-voice-pipeline/audio_source"
	"assistant-voice-pipeline/audio_source/microphone"
	"assistant-voice-pipeline/config"
	"assistant-voice-pipeline/keyword_gate"
	"assistant-voice-pipeline/keyword_gate/phrase"
	"assistant-voice-pipeline/keyword_gate/porcupine"
	"assistant-voice-pipeline/metrics"
	"assistant-voice-pipeline/pipeline_errors"
	"assistant-voice-pipeline/speech_to_text"
	"assistant-voice-pipeline/voice_activity"
	"assistant-voice-pipeline/voice_activity/flux"
	"assistant-voice-pipeline/voice_activity/webrtc"
)

func newSource(cfg *config.Config, fileSys afero.Fs, met *metrics.Metrics, logger *slog.Logger) (audio_source.Interface, error) {
	if cfg.Audio.WavFile != "" {
		return audio_source.NewWavFile(&audio_source.WavFileConfig{
			FileSys:    fileSys,
			Path:       cfg.Audio.WavFile,
			SampleRate: cfg.Audio.SampleRate,
			BlockSize:  cfg.Audio.BlockSize,
		})
	}

	return microphone.New(&microphone.Config{
		DeviceID:   cfg.Audio.Device,
		SampleRate: cfg.Audio.SampleRate,
		BlockSize:  cfg.Audio.BlockSize,
		OnOverflow: func() {
			met.SourceOverflows.Add(context.Background(), 1)
		},
		Logger: logger,
	})
}

// newKeywordClassifier also returns the function releasing the backend.
func newKeywordClassifier(cfg *config.Config, sttEngine speech_to_text.Interface) (keyword_gate.Classifier, func(), error) {
	switch cfg.Keyword.Backend {
	case config.KeywordPorcupine:
		if cfg.Keyword.WindowSize != porcupine.FrameLength() || cfg.Audio.SampleRate != porcupine.SampleRate() {
			return nil, nil, pipeline_errors.Configuration(
				"porcupine needs %d sample windows at %d Hz, got %d at %d Hz",
				porcupine.FrameLength(), porcupine.SampleRate(), cfg.Keyword.WindowSize, cfg.Audio.SampleRate,
			)
		}

		p := cfg.Keyword.Porcupine

		classifier, err := porcupine.New(&porcupine.Config{
			AccessKey:       p.AccessKey,
			ModelPath:       p.ModelPath,
			KeywordPaths:    p.KeywordPaths,
			BuiltInKeywords: p.BuiltInKeywords,
			Sensitivity:     p.Sensitivity,
		})
		if err != nil {
			return nil, nil, pipeline_errors.Model(config.KeywordPorcupine, err)
		}

		return classifier, func() {
			if err := classifier.Close(); err != nil {
				slog.Warn("porcupine close", "error", err)
			}
		}, nil
	default:
		p := cfg.Keyword.Phrase

		classifier, err := phrase.New(&phrase.Config{
			STTEngine:  sttEngine,
			Phrase:     p.Text,
			SampleRate: cfg.Audio.SampleRate,
			Lookback:   p.Lookback,
			Stride:     p.Stride,
			MinLevel:   p.MinLevel,
		})
		if err != nil {
			return nil, nil, err
		}

		slog.Info("spotting wake phrase with whisper", "phrase", p.Text)

		return classifier, func() {}, nil
	}
}

func newVADClassifier(cfg *config.Config) (voice_activity.Classifier, error) {
	if cfg.VAD.Backend == config.VADFlux {
		classifier, err := flux.New(flux.DefaultConfig(cfg.Audio.SampleRate))
		if err != nil {
			return nil, err
		}

		return classifier, nil
	}

	classifier, err := webrtc.New(webrtc.Config{
		SampleRate:     cfg.Audio.SampleRate,
		WindowSize:     cfg.VAD.WindowSize,
		Aggressiveness: cfg.VAD.Aggressiveness,
	})
	if err != nil {
		return nil, pipeline_errors.Model(config.VADWebRTC, err)
	}

	return classifier, nil
}
