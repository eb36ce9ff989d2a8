package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"assistant-voice-pipeline/clients/ai_bot"
	"assistant-voice-pipeline/config"
	"assistant-voice-pipeline/keyword_gate"
	"assistant-voice-pipeline/metrics"
	"assistant-voice-pipeline/pipeline"
	"assistant-voice-pipeline/pipeline_errors"
	"assistant-voice-pipeline/speech_to_text"
	"assistant-voice-pipeline/transcription"
	"assistant-voice-pipeline/utterance_sink"
	"assistant-voice-pipeline/voice_activity"
)

func main() {
	configFlag := flag.String("c", "", "pipeline config file (yaml)")
	modelFlag := flag.String("m", "", "model file for whisper")
	deviceFlag := flag.String("d", "", "portaudio input device index")
	wavFlag := flag.String("wav", "", "replay a 16-bit mono wav file instead of the microphone")
	metricsFlag := flag.String("metrics", "", "metrics listen address, empty keeps the config value")
	envFlag := flag.String("env", ".env", "dotenv file with secrets")

	flag.Parse()

	if err := godotenv.Load(*envFlag); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("error loading %s: %v", *envFlag, err)
	}

	fileSys := afero.NewOsFs()

	cfg, err := config.Load(fileSys, *configFlag, func(cfg *config.Config) {
		if *modelFlag != "" {
			cfg.Whisper.Model = *modelFlag
		}

		if *deviceFlag != "" {
			cfg.Audio.Device = *deviceFlag
		}

		if *wavFlag != "" {
			cfg.Audio.WavFile = *wavFlag
		}

		if *metricsFlag != "" {
			cfg.MetricsAddr = *metricsFlag
		}
	})
	if err != nil {
		log.Printf("error: %v", err)
		os.Exit(pipeline_errors.ExitCode(err))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel.Level()}))
	slog.SetDefault(logger)

	if err = run(cfg, fileSys, logger); err != nil {
		logger.Error("pipeline stopped", "error", err, "fatal", pipeline_errors.IsFatal(err))
		os.Exit(pipeline_errors.ExitCode(err))
	}
}

func run(cfg *config.Config, fileSys afero.Fs, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := metrics.InitProvider(ctx, "")
	if err != nil {
		return err
	}

	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("metrics shutdown", "error", err)
		}
	}()

	met, err := metrics.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	// Load model
	model, err := whisper.New(cfg.Whisper.Model)
	if err != nil {
		return err
	}

	defer model.Close()

	sttEngine, err := speech_to_text.New(&speech_to_text.Config{
		Model:    model,
		Language: cfg.Whisper.Language,
	})
	if err != nil {
		return err
	}

	source, err := newSource(cfg, fileSys, met, logger)
	if err != nil {
		return err
	}

	defer source.Close()

	keywordClassifier, closeKeyword, err := newKeywordClassifier(cfg, sttEngine)
	if err != nil {
		return err
	}

	defer closeKeyword()

	gate, err := keyword_gate.New(&keyword_gate.Config{
		Classifier: keywordClassifier,
		WindowSize: cfg.Keyword.WindowSize,
		Name:       cfg.Keyword.Backend,
	})
	if err != nil {
		return err
	}

	vadClassifier, err := newVADClassifier(cfg)
	if err != nil {
		return err
	}

	vad, err := voice_activity.New(&voice_activity.Config{
		Classifier: vadClassifier,
		WindowSize: cfg.VAD.WindowSize,
		Name:       cfg.VAD.Backend,
	})
	if err != nil {
		return err
	}

	handlerCfg := &transcription.Config{
		STTEngine: sttEngine,
		RecordDir: cfg.Sink.RecordDir,
		FileSys:   fileSys,
		Logger:    logger,
	}

	if cfg.AIBot.ApiHost != "" {
		bot, err := ai_bot.NewClient(&ai_bot.Config{
			ApiHost: cfg.AIBot.ApiHost,
			Timeout: cfg.AIBot.Timeout,
		})
		if err != nil {
			return err
		}

		handlerCfg.Bot = bot
	}

	handler, err := transcription.New(handlerCfg)
	if err != nil {
		return err
	}

	queue, err := utterance_sink.New(&utterance_sink.Config{
		Handler: handler,
		Size:    cfg.Sink.QueueSize,
		Logger:  logger,
		Metrics: met,
	})
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(&pipeline.Config{
		Source:            source,
		KeywordGate:       gate,
		VAD:               vad,
		Sink:              queue,
		SampleRate:        cfg.Audio.SampleRate,
		SilenceDuration:   cfg.Endpointing.SilenceDuration,
		VoiceStartMaxWait: cfg.Endpointing.VoiceStartMaxWait,
		StreamClock:       cfg.Audio.WavFile != "",
		Logger:            logger,
		Metrics:           met,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// the other goroutines stop with the capture loop
		defer stop()

		err := pipe.Run(gctx)
		if cfg.Audio.WavFile != "" && errors.Is(err, io.EOF) {
			logger.Info("end of recording, waiting for pending utterances")
			queue.Wait()

			return nil
		}

		return err
	})

	g.Go(func() error {
		return queue.Run(gctx)
	})

	if cfg.MetricsAddr != "" {
		server := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})

		g.Go(func() error {
			<-gctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return server.Shutdown(shutdownCtx)
		})
	}

	logger.Info("listening for keyword",
		"keyword_backend", cfg.Keyword.Backend,
		"vad_backend", cfg.VAD.Backend,
	)

	return g.Wait()
}
