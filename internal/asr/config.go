package asr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// Engine names the model family loaded by the recognizer
type Engine string

const (
	EngineWhisper    Engine = "whisper"
	EngineTransducer Engine = "transducer" // ReazonSpeech zipformer
	EngineSenseVoice Engine = "sensevoice"
)

// ErrModelNotFound is returned when a required model file is missing
var ErrModelNotFound = errors.New("model file not found")

// Config holds the configuration for the ASR recognizer
type Config struct {
	Engine     Engine
	ModelDir   string // Base directory for the model
	Language   string // ja, en, zh, etc. or empty for auto-detect
	NumThreads int    // Number of threads for inference
	SampleRate int    // Audio sample rate (typically 16000)
	ChunkSec   int    // Seconds of audio decoded per pass
}

// DefaultConfig returns the default configuration for a Japanese Whisper model
func DefaultConfig(modelDir string) Config {
	return Config{
		Engine:     EngineWhisper,
		ModelDir:   modelDir,
		Language:   "ja",
		NumThreads: 4,
		SampleRate: 16000,
		ChunkSec:   30,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.ModelDir)
	if c.Engine == "" {
		c.Engine = d.Engine
	}
	if c.NumThreads <= 0 {
		c.NumThreads = d.NumThreads
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.ChunkSec <= 0 {
		c.ChunkSec = d.ChunkSec
	}
	return c
}

// recognizerConfig locates the model files for the configured engine
// and builds the sherpa-onnx configuration
func (c Config) recognizerConfig() (*sherpa.OfflineRecognizerConfig, error) {
	c = c.withDefaults()
	if c.ModelDir == "" {
		return nil, fmt.Errorf("%w: model directory is not set", ErrModelNotFound)
	}

	model := sherpa.OfflineModelConfig{
		NumThreads: c.NumThreads,
		Debug:      0,
	}

	var err error
	switch c.Engine {
	case EngineWhisper:
		var encoder, decoder string
		if encoder, err = require(c.ModelDir, "encoder",
			"encoder.int8.onnx", "encoder.onnx",
			"large-v3-encoder.int8.onnx", "large-v3-encoder.onnx",
			"turbo-encoder.int8.onnx", "turbo-encoder.onnx"); err != nil {
			return nil, err
		}
		if decoder, err = require(c.ModelDir, "decoder",
			"decoder.int8.onnx", "decoder.onnx",
			"large-v3-decoder.int8.onnx", "large-v3-decoder.onnx",
			"turbo-decoder.int8.onnx", "turbo-decoder.onnx"); err != nil {
			return nil, err
		}
		model.Whisper = sherpa.OfflineWhisperModelConfig{
			Encoder:  encoder,
			Decoder:  decoder,
			Language: c.Language,
			Task:     "transcribe",
		}
		model.Tokens, err = require(c.ModelDir, "tokens", "tokens.txt", "large-v3-tokens.txt", "turbo-tokens.txt")

	case EngineTransducer:
		var encoder, decoder, joiner string
		if encoder, err = require(c.ModelDir, "encoder",
			"encoder-epoch-99-avg-1.int8.onnx", "encoder.int8.onnx",
			"encoder-epoch-99-avg-1.onnx", "encoder.onnx"); err != nil {
			return nil, err
		}
		if decoder, err = require(c.ModelDir, "decoder",
			"decoder-epoch-99-avg-1.onnx", "decoder.onnx"); err != nil {
			return nil, err
		}
		if joiner, err = require(c.ModelDir, "joiner",
			"joiner-epoch-99-avg-1.int8.onnx", "joiner.int8.onnx",
			"joiner-epoch-99-avg-1.onnx", "joiner.onnx"); err != nil {
			return nil, err
		}
		model.Transducer = sherpa.OfflineTransducerModelConfig{
			Encoder: encoder,
			Decoder: decoder,
			Joiner:  joiner,
		}
		model.Tokens, err = require(c.ModelDir, "tokens", "tokens.txt")

	case EngineSenseVoice:
		var path string
		if path, err = require(c.ModelDir, "model", "model.int8.onnx", "model.onnx"); err != nil {
			return nil, err
		}
		model.SenseVoice = sherpa.OfflineSenseVoiceModelConfig{
			Model:                       path,
			Language:                    c.Language,
			UseInverseTextNormalization: 1,
		}
		model.Tokens, err = require(c.ModelDir, "tokens", "tokens.txt")

	default:
		return nil, fmt.Errorf("unknown engine %q", c.Engine)
	}
	if err != nil {
		return nil, err
	}

	return &sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: c.SampleRate,
			FeatureDim: 80,
		},
		ModelConfig: model,
	}, nil
}

func require(dir, name string, candidates ...string) (string, error) {
	if path := findModelFile(dir, candidates); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s in %s", ErrModelNotFound, name, dir)
}

// findModelFile searches for a model file in the given directory
// Returns the first matching file path or empty string if not found
func findModelFile(dir string, candidates []string) string {
	for _, candidate := range candidates {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
