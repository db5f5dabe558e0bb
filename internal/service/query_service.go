package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/studyware/coursepilot/internal/model"
	appErr "github.com/studyware/coursepilot/internal/pkg/errors"
	"github.com/studyware/coursepilot/internal/pkg/timeutil"
	"github.com/studyware/coursepilot/internal/vecstore"
)

const noContextSentinel = "No relevant context found in the course materials."

// The two token-length thresholds differ on purpose: coverage checking
// counts shorter words than key-term extraction does. They are kept as
// independent knobs instead of being unified.
const (
	defaultMinCoverageTokenLen = 3
	defaultMinKeyTermLen       = 4
	defaultMissingFraction     = 0.3
)

// AnswerGenerator is the slice of *ai.Manager the query path depends on.
type AnswerGenerator interface {
	Answer(ctx context.Context, query string, contextBlock string, useWebSearch bool) (string, error)
}

type QueryConfig struct {
	MaxSources    int
	CrossRefLimit int
}

type QueryService struct {
	courses   CourseRepository
	vectors   vecstore.Store
	embedder  Embedder
	generator AnswerGenerator
	cfg       QueryConfig

	minCoverageTokenLen int
	minKeyTermLen       int
	missingFraction     float64
}

func NewQueryService(
	courses CourseRepository,
	vectors vecstore.Store,
	embedder Embedder,
	generator AnswerGenerator,
	cfg QueryConfig,
) *QueryService {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 5
	}
	if cfg.CrossRefLimit <= 0 {
		cfg.CrossRefLimit = 3
	}
	return &QueryService{
		courses:             courses,
		vectors:             vectors,
		embedder:            embedder,
		generator:           generator,
		cfg:                 cfg,
		minCoverageTokenLen: defaultMinCoverageTokenLen,
		minKeyTermLen:       defaultMinKeyTermLen,
		missingFraction:     defaultMissingFraction,
	}
}

// Query runs the full retrieval-augmented pipeline. Any stage failure
// aborts the whole call, a partial answer is never returned.
func (s *QueryService) Query(ctx context.Context, req *model.QueryRequest) (*model.Answer, error) {
	query := strings.TrimSpace(req.Query)
	if req.CourseID == "" || query == "" {
		return nil, appErr.ErrInvalid
	}
	if _, err := s.courses.GetByID(ctx, req.CourseID); err != nil {
		return nil, err
	}
	if err := s.courses.TouchLastAccessed(ctx, req.CourseID, timeutil.NowMilli()); err != nil {
		logutil.GetLogger(ctx).Warn("touch last accessed failed",
			zap.String("course_id", req.CourseID), zap.Error(err))
	}
	maxSources := req.MaxSources
	if maxSources <= 0 {
		maxSources = s.cfg.MaxSources
	}

	matches, err := s.retrieve(ctx, req.CourseID, query, maxSources)
	if err != nil {
		return nil, err
	}
	contextBlock := formatContext(matches)

	if !s.sufficient(query, contextBlock) && req.RequireCrossReference && len(matches) > 0 {
		extra, err := s.crossReference(ctx, req.CourseID, query)
		if err != nil {
			return nil, err
		}
		if extra != "" {
			contextBlock += "\n\nAdditional Context:\n" + extra
		}
	}

	content, err := s.generator.Answer(ctx, query, contextBlock, req.UseWebSearch)
	if err != nil {
		return nil, classify(err, appErr.ErrGeneration)
	}

	return &model.Answer{
		ID:               newID(),
		Role:             "assistant",
		Content:          content,
		Timestamp:        timeutil.NowMilli(),
		Sources:          buildSources(matches),
		WebSearchEnabled: req.UseWebSearch,
	}, nil
}

// Search exposes the raw ranked retrieval without answer generation.
func (s *QueryService) Search(ctx context.Context, courseID, query string, limit int) ([]vecstore.Match, error) {
	query = strings.TrimSpace(query)
	if courseID == "" || query == "" {
		return nil, appErr.ErrInvalid
	}
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.MaxSources
	}
	return s.retrieve(ctx, courseID, query, limit)
}

func (s *QueryService) retrieve(ctx context.Context, courseID, text string, k int) ([]vecstore.Match, error) {
	emb, err := s.embedder.Embed(ctx, text, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, classify(err, appErr.ErrEmbedding)
	}
	matches, err := s.vectors.Query(ctx, courseID, emb, k)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// crossReference fans out one retrieval per key term and concatenates
// whatever comes back, no re-ranking across terms.
func (s *QueryService) crossReference(ctx context.Context, courseID, query string) (string, error) {
	terms := s.keyTerms(query)
	if len(terms) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]vecstore.Match, len(terms))
	errs := make([]error, len(terms))
	var wg sync.WaitGroup
	for i, term := range terms {
		wg.Add(1)
		go func(i int, term string) {
			defer wg.Done()
			matches, err := s.retrieve(ctx, courseID, term, s.cfg.CrossRefLimit)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			results[i] = matches
		}(i, term)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return "", err
		}
	}
	for _, err := range errs {
		if err != nil {
			return "", err
		}
	}

	var merged []vecstore.Match
	for _, matches := range results {
		merged = append(merged, matches...)
	}
	if len(merged) == 0 {
		return "", nil
	}
	return formatContext(merged), nil
}

// sufficient is a crude lexical-coverage check: the context is judged
// insufficient when too many of the query's longer words never appear
// in it. It is an approximation, not a semantic guarantee.
func (s *QueryService) sufficient(query, contextBlock string) bool {
	lowered := strings.ToLower(contextBlock)
	counted := 0
	missing := 0
	for _, token := range strings.Fields(query) {
		if len(token) <= s.minCoverageTokenLen {
			continue
		}
		counted++
		if !strings.Contains(lowered, strings.ToLower(token)) {
			missing++
		}
	}
	if counted == 0 {
		return true
	}
	return float64(missing)/float64(counted) <= s.missingFraction
}

func (s *QueryService) keyTerms(query string) []string {
	var terms []string
	for _, token := range strings.Fields(query) {
		if len(token) > s.minKeyTermLen {
			terms = append(terms, token)
		}
	}
	return terms
}

func formatContext(matches []vecstore.Match) string {
	if len(matches) == 0 {
		return noContextSentinel
	}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, fmt.Sprintf("Source: %s (%s)\nContent: %s\n---",
			m.Metadata.FileName, m.Metadata.FileType, m.Document))
	}
	return strings.Join(blocks, "\n\n")
}

// buildSources attributes the answer to the initial retrieval only,
// cross-reference hits are context, not citations.
func buildSources(matches []vecstore.Match) []model.Source {
	sources := make([]model.Source, 0, len(matches))
	for _, m := range matches {
		excerpt := m.Document
		if len(excerpt) > 200 {
			cut := 200
			// Never cut inside a multi-byte rune, the excerpt must
			// stay valid UTF-8 for the JSON encoder.
			for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
				cut--
			}
			excerpt = excerpt[:cut] + "..."
		}
		sources = append(sources, model.Source{
			FileID:         m.FileID,
			FileName:       m.Metadata.FileName,
			RelevanceScore: 1 - m.Distance,
			Excerpt:        excerpt,
			PageNumber:     m.Metadata.PageNumber,
		})
	}
	return sources
}

func classify(err error, sentinel error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", appErr.ErrTimeout, err)
	}
	if errors.Is(err, appErr.ErrTimeout) || errors.Is(err, appErr.ErrEmbedding) || errors.Is(err, appErr.ErrIndexUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
