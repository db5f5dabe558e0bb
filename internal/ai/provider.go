package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// IProvider is the full surface an upstream model vendor may expose.
// Providers return ErrUnsupported for operations they cannot serve.
type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, system string, user string) (string, error)
	GenerateVision(ctx context.Context, model string, prompt string, mimeType string, payload []byte) (string, error)
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
	Transcribe(ctx context.Context, model string, filename string, audio []byte) (string, error)
}

type IGenerator interface {
	Generate(ctx context.Context, system string, user string) (string, error)
}

type IVisionGenerator interface {
	GenerateVision(ctx context.Context, prompt string, mimeType string, payload []byte) (string, error)
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type ITranscriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

type generator struct {
	provider IProvider
	model    string
}

func NewGenerator(p IProvider, model string) IGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Generate(ctx context.Context, system string, user string) (string, error) {
	return g.provider.Generate(ctx, g.model, system, user)
}

type visionGenerator struct {
	provider IProvider
	model    string
}

func NewVisionGenerator(p IProvider, model string) IVisionGenerator {
	return &visionGenerator{provider: p, model: model}
}

func (g *visionGenerator) GenerateVision(ctx context.Context, prompt string, mimeType string, payload []byte) (string, error) {
	return g.provider.GenerateVision(ctx, g.model, prompt, mimeType, payload)
}

type embedder struct {
	provider IProvider
	model    string
}

func NewEmbedder(p IProvider, model string) IEmbedder {
	return &embedder{provider: p, model: model}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text, taskType)
}

func (e *embedder) ModelName() string {
	return e.model
}

type transcriber struct {
	provider IProvider
	model    string
}

func NewTranscriber(p IProvider, model string) ITranscriber {
	return &transcriber{provider: p, model: model}
}

func (t *transcriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	return t.provider.Transcribe(ctx, t.model, filename, audio)
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
