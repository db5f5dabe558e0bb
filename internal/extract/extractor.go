package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	appErr "github.com/studyware/coursepilot/internal/pkg/errors"
	"github.com/studyware/coursepilot/internal/pkg/execx"
)

// MinContentLength is the structured-extraction acceptance threshold.
// Anything shorter is treated as a failed extraction and rerouted to
// the multimodal path.
const MinContentLength = 100

var (
	textTypes = map[string]bool{
		"txt": true, "csv": true,
		"js": true, "ts": true, "py": true, "go": true,
		"java": true, "cpp": true, "c": true, "html": true, "css": true,
	}
	documentTypes = map[string]bool{"docx": true, "doc": true, "odt": true}
	imageTypes    = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true}
)

type Result struct {
	Text         string
	UsedFallback bool
}

// VisionExtractor is the multimodal fallback path, satisfied by
// *ai.Manager.
type VisionExtractor interface {
	ExtractDocument(ctx context.Context, mimeType string, payload []byte) (string, error)
}

// Extractor turns heterogeneous source material into plain text.
// Structured extraction is best effort: any failure mode, including
// output below MinContentLength, degrades to the multimodal path
// instead of failing the ingestion. Only a failure of the fallback
// itself is fatal.
type Extractor struct {
	runner           execx.Runner
	vision           VisionExtractor
	minContentLength int
}

func New(runner execx.Runner, vision VisionExtractor) *Extractor {
	return &Extractor{
		runner:           runner,
		vision:           vision,
		minContentLength: MinContentLength,
	}
}

func (e *Extractor) Extract(ctx context.Context, path string, declaredType string) (Result, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("path", path), zap.String("type", declaredType))
	typ := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(declaredType), "."))

	var content string
	switch {
	case typ == "pdf":
		content = e.extractPDF(ctx, path)
	case typ == "md" || typ == "markdown":
		content = e.extractMarkdown(ctx, path)
	case typ == "json":
		content = e.extractJSON(ctx, path)
	case textTypes[typ]:
		content = e.readText(ctx, path)
	case documentTypes[typ]:
		content = e.extractDocument(ctx, path)
	case imageTypes[typ]:
		// Images have no structured path at all.
	default:
		content = e.readText(ctx, path)
	}

	if len(content) >= e.minContentLength {
		return Result{Text: content, UsedFallback: false}, nil
	}

	logger.Info("structured extraction insufficient, using multimodal fallback",
		zap.Int("content_length", len(content)),
	)
	fallbackText, err := e.extractWithFallback(ctx, path, typ)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", appErr.ErrFallbackExtraction, err)
	}
	return Result{Text: fallbackText, UsedFallback: true}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) string {
	out, err := e.runner.Run(ctx, "pdftotext", "-layout", path, "-")
	if err != nil {
		logutil.GetLogger(ctx).Warn("pdf text extraction failed", zap.Error(err))
		return ""
	}
	return out.Stdout
}

func (e *Extractor) extractDocument(ctx context.Context, path string) string {
	out, err := e.runner.Run(ctx, "pandoc", path, "-t", "plain")
	if err != nil {
		logutil.GetLogger(ctx).Warn("document conversion failed", zap.Error(err))
		return ""
	}
	return out.Stdout
}

func (e *Extractor) extractMarkdown(ctx context.Context, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read markdown failed", zap.Error(err))
		return ""
	}
	return markdownToText(data)
}

func (e *Extractor) extractJSON(ctx context.Context, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read json failed", zap.Error(err))
		return ""
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return string(data)
	}
	return pretty.String()
}

func (e *Extractor) readText(ctx context.Context, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read file failed", zap.Error(err))
		return ""
	}
	return string(data)
}

func (e *Extractor) extractWithFallback(ctx context.Context, path string, typ string) (string, error) {
	if e.vision == nil {
		return "", fmt.Errorf("no multimodal extractor configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return e.vision.ExtractDocument(ctx, mimeTypeFor(typ), data)
}

func mimeTypeFor(typ string) string {
	switch typ {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// markdownToText walks the goldmark AST and keeps only text segments,
// dropping markup so embeddings are not polluted with syntax.
func markdownToText(source []byte) string {
	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		var sb strings.Builder
		_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			switch n.Kind() {
			case ast.KindText:
				seg := n.(*ast.Text).Segment
				sb.Write(seg.Value(source))
				if n.(*ast.Text).SoftLineBreak() || n.(*ast.Text).HardLineBreak() {
					sb.WriteByte(' ')
				}
			case ast.KindFencedCodeBlock:
				code := n.(*ast.FencedCodeBlock)
				for i := 0; i < code.Lines().Len(); i++ {
					line := code.Lines().At(i)
					sb.Write(line.Value(source))
				}
				return ast.WalkSkipChildren, nil
			}
			return ast.WalkContinue, nil
		})
		if block := strings.TrimSpace(sb.String()); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}
