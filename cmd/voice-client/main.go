package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/apiclient"
	"github.com/book-expert/voice-clone-service/internal/fsutil"
	"github.com/book-expert/voice-clone-service/internal/server"
)

// Flag names.
const (
	flagServer      = "server"
	flagHealth      = "health"
	flagUpload      = "upload"
	flagName        = "name"
	flagDescription = "description"
	flagList        = "list"
	flagText        = "text"
	flagVoice       = "voice"
	flagAccent      = "accent"
	flagSpeed       = "speed"
	flagOutput      = "output"
	flagHistory     = "history"
	flagTimeout     = "timeout"
)

// Flag descriptions.
const (
	flagServerDesc      = "Base URL of the voice service"
	flagHealthDesc      = "Check service health and exit"
	flagUploadDesc      = "Audio sample to register as a new voice"
	flagNameDesc        = "Name of the uploaded voice"
	flagDescriptionDesc = "Optional description of the uploaded voice"
	flagListDesc        = "List registered voices"
	flagTextDesc        = "Text to speak"
	flagVoiceDesc       = "Voice id to speak with"
	flagAccentDesc      = "Accent code (see /accents/)"
	flagSpeedDesc       = "Speech speed between 0.5 and 2.0"
	flagOutputDesc      = "Output file path (.wav)"
	flagHistoryDesc     = "Show synthesis history"
	flagTimeoutDesc     = "Request timeout"
)

// Error and log messages.
const (
	errNoAction           = "one of --health, --upload, --list, --text or --history must be provided"
	errNameRequired       = "--name is required with --upload"
	errVoiceRequired      = "--voice is required with --text"
	logClientStarted      = "Voice client talking to %s"
	logUploaded           = "Uploaded %s as voice %s"
	logSynthesized        = "Synthesized audio %s into %s (%s)"
	defaultServerURL      = "http://127.0.0.1:8000"
	defaultOutputFile     = "output.wav"
	logFileName           = "voice-client.log"
	defaultRequestTimeout = 10 * time.Minute
)

var (
	errNoActionGiven    = errors.New(errNoAction)
	errMissingName      = errors.New(errNameRequired)
	errMissingVoiceFlag = errors.New(errVoiceRequired)
)

// appFlags holds the parsed command-line flag values.
type audioDownloader interface {
	DownloadAudio(ctx context.Context, audioID string, dst io.Writer) (int64, error)
}

type appFlags struct {
	server      string
	health      bool
	upload      string
	name        string
	description string
	list        bool
	text        string
	voice       string
	accent      string
	speed       float64
	output      string
	history     bool
	timeout     time.Duration
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	clientLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer clientLog.Close()

	clientLog.Info(logClientStarted, flags.server)

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	client := apiclient.New(flags.server, flags.timeout)

	return dispatch(ctx, client, clientLog, flags, out)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("voice-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.server, flagServer, defaultServerURL, flagServerDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.StringVar(&flags.upload, flagUpload, "", flagUploadDesc)
	flagSet.StringVar(&flags.name, flagName, "", flagNameDesc)
	flagSet.StringVar(&flags.description, flagDescription, "", flagDescriptionDesc)
	flagSet.BoolVar(&flags.list, flagList, false, flagListDesc)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.accent, flagAccent, "", flagAccentDesc)
	flagSet.Float64Var(&flags.speed, flagSpeed, 0, flagSpeedDesc)
	flagSet.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flagSet.BoolVar(&flags.history, flagHistory, false, flagHistoryDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultRequestTimeout, flagTimeoutDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return flags, err
	}

	return flags, validateFlags(flags)
}

func validateFlags(flags appFlags) error {
	switch {
	case flags.upload != "" && flags.name == "":
		return errMissingName
	case flags.text != "" && flags.voice == "":
		return errMissingVoiceFlag
	case !flags.health && flags.upload == "" && !flags.list && flags.text == "" && !flags.history:
		return errNoActionGiven
	}

	return nil
}

// dispatch runs the single action selected by the flags.
func dispatch(ctx context.Context, client *apiclient.Client, clientLog *logger.Logger, flags appFlags, out io.Writer) error {
	switch {
	case flags.health:
		health, err := client.Health(ctx)
		if health != nil {
			printJSON(out, health)
		}

		return err
	case flags.upload != "":
		uploaded, err := client.UploadVoice(ctx, flags.upload, flags.name, flags.description)
		if err != nil {
			return err
		}

		clientLog.Info(logUploaded, flags.upload, uploaded.VoiceID)
		printJSON(out, uploaded)

		return nil
	case flags.list:
		voices, err := client.ListVoices(ctx)
		if err != nil {
			return err
		}

		printJSON(out, voices)

		return nil
	case flags.text != "":
		return synthesize(ctx, client, clientLog, flags, out)
	default:
		history, err := client.History(ctx)
		if err != nil {
			return err
		}

		printJSON(out, history)

		return nil
	}
}

func synthesize(ctx context.Context, client *apiclient.Client, clientLog *logger.Logger, flags appFlags, out io.Writer) error {
	result, err := client.Synthesize(ctx, server.SynthesizeRequest{
		Text:    flags.text,
		VoiceID: flags.voice,
		Accent:  flags.accent,
		Speed:   flags.speed,
	})
	if err != nil {
		return err
	}

	written, err := downloadTo(ctx, client, result.AudioID, flags.output)
	if err != nil {
		return err
	}

	clientLog.Info(logSynthesized, result.AudioID, flags.output, fsutil.FormatFileSize(written))
	fmt.Fprintf(out, "Generated: %s\n", flags.output)

	return nil
}

// downloadTo writes the generated audio to path. A failed download or close leaves
// no file behind.
func downloadTo(ctx context.Context, client audioDownloader, audioID, path string) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	written, downloadErr := client.DownloadAudio(ctx, audioID, file)
	closeErr := file.Close()

	if downloadErr == nil && closeErr != nil {
		downloadErr = fmt.Errorf("failed to close %s: %w", path, closeErr)
	}

	if downloadErr != nil {
		_ = os.Remove(path)

		return 0, downloadErr
	}

	return written, nil
}

func printJSON(out io.Writer, value any) {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(value)
}
