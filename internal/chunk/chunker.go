package chunk

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	DefaultMaxChunkSize = 1000
	DefaultOverlap      = 200
)

var (
	ErrInvalidChunkSize = errors.New("max chunk size must be positive")
	ErrInvalidOverlap   = errors.New("overlap must be non-negative and smaller than max chunk size")
)

// Piece is one emitted chunk. StartChar/EndChar are raw offsets into
// the input before trimming; Size is the post-trim content length.
type Piece struct {
	Content   string
	Index     int
	StartChar int
	EndChar   int
	Size      int
}

// Splitter walks text in fixed-size windows and snaps each window end
// back to the nearest sentence boundary past the window midpoint.
// Adjacent windows re-cover Overlap characters of the previous tail so
// meaning straddling a boundary survives in at least one chunk.
type Splitter struct {
	MaxChunkSize int
	Overlap      int
}

func NewSplitter(maxChunkSize, overlap int) (*Splitter, error) {
	if maxChunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if overlap < 0 || overlap >= maxChunkSize {
		return nil, ErrInvalidOverlap
	}
	return &Splitter{MaxChunkSize: maxChunkSize, Overlap: overlap}, nil
}

func (s *Splitter) Split(ctx context.Context, text string) ([]Piece, error) {
	if s.MaxChunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if s.Overlap < 0 || s.Overlap >= s.MaxChunkSize {
		return nil, ErrInvalidOverlap
	}
	if len(text) == 0 {
		return nil, nil
	}

	var pieces []Piece
	start := 0
	index := 0
	for start < len(text) {
		end := start + s.MaxChunkSize
		if end < len(text) {
			if bp := s.breakPoint(text, start, end); bp > 0 {
				end = bp + 1
			} else {
				// A raw window cut must not land inside a multi-byte
				// rune. Break points are ASCII bytes so only this
				// branch can misalign.
				end = runeFloor(text, start, end)
			}
		}
		sliceEnd := end
		if sliceEnd > len(text) {
			sliceEnd = len(text)
		}
		content := strings.TrimSpace(text[start:sliceEnd])
		if content != "" {
			pieces = append(pieces, Piece{
				Content:   content,
				Index:     index,
				StartChar: start,
				EndChar:   sliceEnd,
				Size:      len(content),
			})
			index++
		}
		next := end - s.Overlap
		if next > 0 && next < len(text) {
			next = runeFloor(text, 0, next)
		}
		if next <= start {
			// A break point close to the midpoint can put the next
			// window start at or before the current one; skipping the
			// overlap for this boundary keeps the walk moving.
			next = end
		}
		start = next
	}

	logutil.GetLogger(ctx).Debug("text split into chunks",
		zap.Int("input_size", len(text)),
		zap.Int("chunks", len(pieces)),
	)
	return pieces, nil
}

// runeFloor walks pos back to the nearest rune start above floor. When
// the whole window sits inside one rune, the cut moves forward past it
// instead so the walk always advances.
func runeFloor(text string, floor, pos int) int {
	for pos > floor && !utf8.RuneStart(text[pos]) {
		pos--
	}
	if pos == floor {
		_, n := utf8.DecodeRuneInString(text[floor:])
		return floor + n
	}
	return pos
}

// breakPoint returns the offset of the best natural break at or before
// end, or -1. Sentence terminators (period, newline) win over spaces;
// a break only counts if it lies strictly past the window midpoint.
func (s *Splitter) breakPoint(text string, start, end int) int {
	window := text[:end+1]
	mid := start + s.MaxChunkSize/2

	best := strings.LastIndexByte(window, '.')
	if nl := strings.LastIndexByte(window, '\n'); nl > best {
		best = nl
	}
	if best > mid {
		return best
	}
	if sp := strings.LastIndexByte(window, ' '); sp > mid {
		return sp
	}
	return -1
}
