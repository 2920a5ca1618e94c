package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"vodscribe/internal/asr"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type options struct {
	input      string
	output     string
	format     string
	modelDir   string
	engine     string
	language   string
	numThreads int
	clip       time.Duration
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe a local audio file",
		Example: `  transcribe -i audio.m4a
  transcribe -i audio.wav -o output.txt
  transcribe -i audio.mp3 --format json -o output.json
  transcribe -i audio.webm --format srt --engine transducer --model models/reazonspeech`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "input audio file")
	f.StringVarP(&opts.output, "output", "o", "", "output file (default: stdout)")
	f.StringVar(&opts.format, "format", "text", "output format: text, json, srt")
	f.StringVar(&opts.modelDir, "model", "models/sherpa-onnx-whisper-turbo", "model directory")
	f.StringVar(&opts.engine, "engine", string(asr.EngineWhisper), "model family: whisper, transducer, sensevoice")
	f.StringVar(&opts.language, "lang", "ja", "spoken language (empty for auto-detect)")
	f.IntVar(&opts.numThreads, "threads", 4, "inference threads")
	f.DurationVar(&opts.clip, "clip", 0, "only transcribe the first part of the audio (e.g. 60s)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print progress to stderr")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	if _, err := os.Stat(opts.input); err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if !asr.IsSupportedFormat(opts.input) {
		return fmt.Errorf("unsupported audio format: %s", opts.input)
	}
	if opts.format != "text" && opts.format != "json" && opts.format != "srt" {
		return fmt.Errorf("invalid format %q: must be text, json or srt", opts.format)
	}

	cfg := asr.DefaultConfig(opts.modelDir)
	cfg.Engine = asr.Engine(opts.engine)
	cfg.Language = opts.language
	cfg.NumThreads = opts.numThreads

	if opts.verbose {
		fmt.Fprintf(os.Stderr, "Loading %s model from %s\n", cfg.Engine, cfg.ModelDir)
	}
	recognizer, err := asr.NewRecognizer(cfg)
	if err != nil {
		if errors.Is(err, asr.ErrModelNotFound) {
			fmt.Fprintln(os.Stderr, "Hint: download a sherpa-onnx model from https://github.com/k2-fsa/sherpa-onnx/releases/tag/asr-models")
		}
		return err
	}
	defer recognizer.Close()

	var onProgress func(float64)
	if opts.verbose {
		onProgress = func(f float64) {
			fmt.Fprintf(os.Stderr, "\rTranscribing... %3.0f%%", f*100)
		}
	}
	start := time.Now()
	result, err := recognizer.TranscribeFile(ctx, opts.input, onProgress, opts.clip)
	if opts.verbose {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "Audio %.1fs transcribed in %s\n", result.Audio, time.Since(start).Round(time.Millisecond))
	}

	var out string
	switch opts.format {
	case "json":
		if out, err = result.FormatAsJSON(); err != nil {
			return err
		}
	case "srt":
		out = result.FormatAsSRT()
	default:
		out = result.FormatAsText()
	}

	if opts.output == "" {
		fmt.Println(out)
		return nil
	}
	if err := os.WriteFile(opts.output, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "Written to %s\n", opts.output)
	}
	return nil
}
