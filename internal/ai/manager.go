package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const extractionPrompt = "Extract all text content from this document. " +
	"Include all information, formatting, tables, and any visible text. " +
	"If this is an image, describe it in detail."

type ManagerConfig struct {
	Timeout             int
	MaxConcurrentEmbeds int
}

// Manager binds the narrow provider interfaces together and owns the
// per-call deadline and the bounded embedding fan-out.
type Manager struct {
	generator   IGenerator
	vision      IVisionGenerator
	embedder    IEmbedder
	transcriber ITranscriber
	cfg         ManagerConfig
}

func NewManager(
	generator IGenerator,
	vision IVisionGenerator,
	embedder IEmbedder,
	transcriber ITranscriber,
	cfg ManagerConfig,
) *Manager {
	return &Manager{
		generator:   generator,
		vision:      vision,
		embedder:    embedder,
		transcriber: transcriber,
		cfg:         cfg,
	}
}

// Answer generates a grounded response. The system prompt pins the
// model to the supplied context and asks it to admit when the answer
// is not there rather than invent one.
func (m *Manager) Answer(ctx context.Context, query string, contextBlock string, useWebSearch bool) (string, error) {
	if m.generator == nil {
		return "", ErrUnavailable
	}
	system := fmt.Sprintf(`You are an AI assistant helping students with their course materials.
You have access to the following course content:

%s

Instructions:
1. Answer questions based ONLY on the provided course content
2. If the answer isn't in the content, say so clearly
3. Cite specific sources when providing information
4. Format your response with clear headings and structure
5. Be helpful and thorough in your explanations`, contextBlock)
	if useWebSearch {
		system += "\n6. You may supplement with web search results if enabled"
	}

	ctx, cancel := m.callContext(ctx)
	defer cancel()
	resp, err := m.generator.Generate(ctx, system, query)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

// ExtractDocument runs the multimodal fallback: the raw bytes go to a
// vision-capable model with an instruction to transcribe everything
// visible.
func (m *Manager) ExtractDocument(ctx context.Context, mimeType string, payload []byte) (string, error) {
	if m.vision == nil {
		return "", ErrUnavailable
	}
	ctx, cancel := m.callContext(ctx)
	defer cancel()
	return m.vision.GenerateVision(ctx, extractionPrompt, mimeType, payload)
}

func (m *Manager) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if m.transcriber == nil {
		return "", ErrUnavailable
	}
	ctx, cancel := m.callContext(ctx)
	defer cancel()
	return m.transcriber.Transcribe(ctx, filename, audio)
}

// Embed retries once after a deadline, embedding is idempotent so the
// blind retry is safe.
func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, ErrUnavailable
	}
	emb, err := m.embedOnce(ctx, text, taskType)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		emb, err = m.embedOnce(ctx, text, taskType)
	}
	return emb, err
}

func (m *Manager) embedOnce(ctx context.Context, text string, taskType string) ([]float32, error) {
	ctx, cancel := m.callContext(ctx)
	defer cancel()
	return m.embedder.Embed(ctx, text, taskType)
}

// EmbedBatch embeds every text in parallel, bounded by
// MaxConcurrentEmbeds in-flight calls. Results are index-aligned to
// the input; the first failure cancels the rest and fails the batch.
func (m *Manager) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if m.embedder == nil {
		return nil, ErrUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}
	limit := m.cfg.MaxConcurrentEmbeds
	if limit <= 0 {
		limit = 4
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, limit)
	results := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()
			emb, err := m.Embed(ctx, text, taskType)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			results[i] = emb
		}(i, text)
	}
	wg.Wait()

	// Prefer the root-cause error over the cancellations it triggered.
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, err
		}
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

func (m *Manager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
	}
	return context.WithCancel(ctx)
}
