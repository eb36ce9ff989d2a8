package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"assistant-voice-pipeline/pipeline_errors"
	"assistant-voice-pipeline/voice_activity/webrtc"
)

const AccessKeyEnv = "PICOVOICE_ACCESS_KEY"

// Override adjusts a decoded config before validation, e.g. from flags.
type Override func(cfg *Config)

// Load reads the YAML file at path from fileSys. An empty path starts from
// the defaults. Overrides are applied before the result is validated.
func Load(fileSys afero.Fs, path string, overrides ...Override) (*Config, error) {
	if path == "" {
		return finish(Default(), overrides)
	}

	f, err := fileSys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, overrides...)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	return cfg, nil
}

// LoadFromReader decodes YAML over the defaults and validates the result.
func LoadFromReader(r io.Reader, overrides ...Override) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	return finish(cfg, overrides)
}

func finish(cfg *Config, overrides []Override) (*Config, error) {
	for _, override := range overrides {
		override(cfg)
	}

	if cfg.Keyword.Porcupine.AccessKey == "" {
		cfg.Keyword.Porcupine.AccessKey = os.Getenv(AccessKeyEnv)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every invalid setting at once as a ConfigurationError.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}

	if cfg.Audio.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_size must be positive, got %d", cfg.Audio.BlockSize))
	}

	if cfg.Keyword.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("keyword.window_size must be positive, got %d", cfg.Keyword.WindowSize))
	}

	switch cfg.Keyword.Backend {
	case KeywordPorcupine:
		p := cfg.Keyword.Porcupine
		if p.AccessKey == "" {
			errs = append(errs, fmt.Errorf("keyword.porcupine.access_key is required (or set %s)", AccessKeyEnv))
		}

		if len(p.KeywordPaths) == 0 && len(p.BuiltInKeywords) == 0 {
			errs = append(errs, fmt.Errorf("keyword.porcupine needs keyword_paths or builtin_keywords"))
		}

		if p.Sensitivity < 0 || p.Sensitivity > 1 {
			errs = append(errs, fmt.Errorf("keyword.porcupine.sensitivity %.2f is out of range [0, 1]", p.Sensitivity))
		}
	case KeywordPhrase:
		p := cfg.Keyword.Phrase
		if p.Text == "" {
			errs = append(errs, fmt.Errorf("keyword.phrase.text is required"))
		}

		if p.Stride <= 0 {
			errs = append(errs, fmt.Errorf("keyword.phrase.stride must be positive, got %d", p.Stride))
		}

		if p.Lookback <= 0 {
			errs = append(errs, fmt.Errorf("keyword.phrase.lookback must be positive, got %v", p.Lookback))
		}
	default:
		errs = append(errs, fmt.Errorf("keyword.backend %q is invalid; valid values: porcupine, phrase", cfg.Keyword.Backend))
	}

	switch cfg.VAD.Backend {
	case VADWebRTC:
		if !webrtc.ValidWindow(cfg.Audio.SampleRate, cfg.VAD.WindowSize) {
			errs = append(errs, fmt.Errorf("vad.window_size %d at %d Hz is not a 10, 20 or 30 ms frame", cfg.VAD.WindowSize, cfg.Audio.SampleRate))
		}

		if cfg.VAD.Aggressiveness < 0 || cfg.VAD.Aggressiveness > 3 {
			errs = append(errs, fmt.Errorf("vad.aggressiveness %d is out of range [0, 3]", cfg.VAD.Aggressiveness))
		}
	case VADFlux:
		if cfg.VAD.WindowSize <= 0 {
			errs = append(errs, fmt.Errorf("vad.window_size must be positive, got %d", cfg.VAD.WindowSize))
		}
	default:
		errs = append(errs, fmt.Errorf("vad.backend %q is invalid; valid values: webrtc, flux", cfg.VAD.Backend))
	}

	if cfg.Endpointing.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("endpointing.silence_duration must be positive, got %v", cfg.Endpointing.SilenceDuration))
	}

	if cfg.Endpointing.VoiceStartMaxWait <= 0 {
		errs = append(errs, fmt.Errorf("endpointing.voice_start_max_wait must be positive, got %v", cfg.Endpointing.VoiceStartMaxWait))
	}

	if cfg.Whisper.Model == "" {
		errs = append(errs, fmt.Errorf("whisper.model is required"))
	}

	if cfg.Sink.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("sink.queue_size must be positive, got %d", cfg.Sink.QueueSize))
	}

	if len(errs) == 0 {
		return nil
	}

	return &pipeline_errors.ConfigurationError{Err: errors.Join(errs...)}
}
