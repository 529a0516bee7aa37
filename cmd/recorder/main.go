package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lexiqai/voice-transcribe/internal/capture"
	"github.com/lexiqai/voice-transcribe/internal/config"
	"github.com/lexiqai/voice-transcribe/internal/mic"
	"github.com/lexiqai/voice-transcribe/internal/observability"
	"github.com/lexiqai/voice-transcribe/internal/transcribe"
)

// Exit codes
const (
	exitOK        = 0
	exitFailure   = 1
	exitCancelled = 130
)

// statusPrinter reports coordinator progress on stderr
type statusPrinter struct{}

func (statusPrinter) StatusChanged(status transcribe.Status) {
	switch status {
	case transcribe.StatusRecording:
		fmt.Fprintln(os.Stderr, "Recording... press Enter to stop, Ctrl+C to cancel.")
	case transcribe.StatusTranscribing:
		fmt.Fprintln(os.Stderr, "Transcribing...")
	}
}

func (statusPrinter) Transcribed(string) {}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitFailure
	}

	// stdout carries only the transcript
	observability.InitLoggerWithWriter(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	stop := make(chan struct{}, 1)
	requestStop := func() {
		select {
		case stop <- struct{}{}:
		default:
		}
	}

	var coordinator *transcribe.Coordinator
	device := mic.NewDevice(mic.NewConfig(cfg, func() {
		if !coordinator.IsRecording() {
			return
		}
		fmt.Fprintln(os.Stderr, "Silence detected.")
		requestStop()
	}))
	client := transcribe.NewClient(transcribe.NewClientConfig(cfg))
	coordinator = transcribe.NewCoordinator(device, client, transcribe.Options{
		Metrics:  observability.NewMetrics("recorder"),
		Observer: statusPrinter{},
	})

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	logger.Debug().Str("url", cfg.TranscribeURL).Msg("Starting recorder")
	if err := coordinator.StartRecording(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		return exitFailure
	}

	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		requestStop()
	}()

	select {
	case <-interrupt:
		coordinator.CancelRecording()
		fmt.Fprintln(os.Stderr, "Recording cancelled.")
		return exitCancelled

	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.UploadTimeout())
	defer cancel()

	// Ctrl+C while transcribing abandons the upload
	go func() {
		select {
		case <-interrupt:
			coordinator.CancelRecording()
		case <-ctx.Done():
		}
	}()

	text, err := coordinator.StopAndTranscribe(ctx)
	if errors.Is(err, transcribe.ErrCancelled) {
		fmt.Fprintln(os.Stderr, "Transcription cancelled.")
		return exitCancelled
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		return exitFailure
	}

	fmt.Println(text)
	return exitOK
}

// describe turns coordinator errors into user-facing messages
func describe(err error) string {
	var svcErr *transcribe.ServiceError
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "Microphone access was denied."
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return fmt.Sprintf("No usable microphone: %v", err)
	case errors.Is(err, capture.ErrNoAudioCaptured):
		return "No audio was captured."
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out waiting for the transcription."
	case errors.As(err, &svcErr):
		return fmt.Sprintf("Transcription failed: %s", svcErr.Detail)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
