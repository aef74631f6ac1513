// main package for the voice-service
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/voice-clone-service/internal/checkpoint"
	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/model"
	"github.com/book-expert/voice-clone-service/internal/objectstore"
	"github.com/book-expert/voice-clone-service/internal/registry"
	"github.com/book-expert/voice-clone-service/internal/server"
	"github.com/book-expert/voice-clone-service/internal/voice"
	"github.com/book-expert/voice-clone-service/internal/worker"
)

const (
	bootstrapLogFile = "voice-service-bootstrap.log"
	serviceLogFile   = "voice-service.log"
	shutdownTimeout  = 30 * time.Second
)

type appFlags struct {
	config    string
	envFile   string
	fetchOnly bool
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.config, "config", "", "Path to a TOML config file (defaults to the central configurator)")
	flag.StringVar(&flags.envFile, "env", ".env", "Optional .env file loaded before the configuration")
	flag.BoolVar(&flags.fetchOnly, "fetch-only", false, "Download missing checkpoints and exit")
	flag.Parse()

	return flags
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func run() error {
	flags := parseFlags()

	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}
	defer bootstrapLog.Close()

	envErr := godotenv.Load(flags.envFile)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		bootstrapLog.Warn("Could not load %s: %v", flags.envFile, envErr)
	}

	// 2. Load configuration
	cfg, err := config.Load(flags.config, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	log, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Make sure the converter checkpoints are on disk
	checkpoints := checkpoint.NewManager(cfg.Checkpoints, nil, log)

	err = checkpoints.EnsureConverter(ctx)
	if err != nil {
		log.Error("Checkpoint bootstrap failed: %v", err)

		return fmt.Errorf("failed to ensure checkpoints: %w", err)
	}

	if flags.fetchOnly {
		_, err = checkpoints.ResolveBaseSpeaker(ctx)
		if err != nil {
			return fmt.Errorf("failed to ensure base speaker checkpoints: %w", err)
		}

		log.System("Checkpoints ready in %s", cfg.Checkpoints.Dir)

		return nil
	}

	return serve(ctx, cfg, checkpoints, log)
}

func serve(ctx context.Context, cfg *config.Config, checkpoints *checkpoint.Manager, log *logger.Logger) error {
	backend := model.NewClient(cfg.Model.ServiceURL, time.Duration(cfg.Model.TimeoutSeconds)*time.Second)
	converter := checkpoints.Converter()

	err := backend.LoadConverter(ctx, model.CheckpointRequest{
		ConfigPath:     converter.ConfigPath,
		CheckpointPath: converter.CheckpointPath,
		Device:         cfg.Model.Device,
	})
	if err != nil {
		log.Warn("Model backend did not load the converter yet: %v", err)
	}

	store, err := registry.Open(cfg.Paths.DatabasePath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := voice.NewService(backend, checkpoints, store, voice.Options{
		VoicesDir:      cfg.Paths.VoicesDir,
		AudioDir:       cfg.Paths.AudioDir,
		Device:         cfg.Model.Device,
		Language:       cfg.Model.Language,
		Watermark:      cfg.Model.Watermark,
		PreprocessText: cfg.Model.PreprocessText,
	}, log)
	if err != nil {
		return err
	}

	errChan := make(chan error, 2)

	if cfg.NATS.Enabled() {
		natsConnection, natsErr := startWorker(ctx, cfg, service, log, errChan)
		if natsErr != nil {
			return natsErr
		}
		defer natsConnection.Close()
	}

	httpServer := &http.Server{
		Addr: cfg.Server.Address(),
		Handler: server.New(server.Dependencies{
			Voices:      service,
			Backend:     backend,
			Database:    store,
			Checkpoints: checkpoints,
			RequiredSet: checkpoint.SetConverter,
			MaxUploadMB: cfg.Server.MaxUploadMB,
			Log:         log,
		}),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	go func() {
		log.System("Voice service listening on %s", httpServer.Addr)

		listenErr := httpServer.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server failed: %w", listenErr)
		}
	}()

	select {
	case <-ctx.Done():
		log.System("Shutting down voice service")
	case err = <-errChan:
		log.Error("Voice service stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		return fmt.Errorf("failed to shut down http server: %w", shutdownErr)
	}

	return err
}

func startWorker(
	ctx context.Context,
	cfg *config.Config,
	service *voice.Service,
	log *logger.Logger,
	errChan chan<- error,
) (*nats.Conn, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	js, err := jetstream.New(natsConnection)
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	textStore, err := objectstore.New(ctx, js, cfg.NATS.TextObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, err
	}

	audioStore, err := objectstore.New(ctx, js, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, err
	}

	natsWorker := worker.NewNatsWorker(natsConnection, cfg.NATS.SynthesisSubject, textStore, audioStore,
		service, time.Duration(cfg.Model.TimeoutSeconds)*time.Second, log)

	go func() {
		runErr := natsWorker.Run(ctx)
		if runErr != nil {
			errChan <- runErr
		}
	}()

	return natsConnection, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
