package ingestion

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
	"github.com/claimsage/claimsage-backend/internal/platform/openai"
)

const (
	DefaultMaxTokens     = 500
	DefaultOverlapTokens = 50

	// runesPerToken mirrors openai.EstimateTokens: ~4 runes per token.
	runesPerToken = 4
)

var (
	paragraphSplit = regexp.MustCompile(`\n{2,}`)
	sentenceEnd    = regexp.MustCompile(`([.!?])(\s+|$)`)
)

// Chunk splits document text into ordered segments of at most maxTokens
// approximate tokens, with consecutive segments sharing roughly overlapTokens
// of trailing content. Boundaries are chosen at paragraphs first, sentences
// next, and a hard token cut only for text with no usable boundaries.
// Whitespace-only input yields zero segments; undecodable binary input fails
// with an invalid-input error.
func Chunk(text string, maxTokens, overlapTokens int) ([]string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		return nil, apperr.Newf(apperr.KindInvalidInput,
			"overlap_tokens (%d) must be smaller than max_tokens (%d)", overlapTokens, maxTokens)
	}

	if !utf8.ValidString(text) || strings.ContainsRune(text, '\x00') {
		return nil, apperr.Newf(apperr.KindInvalidInput, "content is not decodable text")
	}

	text = normalizeText(text)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	units := splitUnits(text, maxTokens, overlapTokens)
	if len(units) == 0 {
		return nil, nil
	}

	return packUnits(units, maxTokens, overlapTokens), nil
}

func normalizeText(text string) string {
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// splitUnits breaks text into boundary-respecting pieces, each at most
// maxTokens. Paragraphs that fit stay whole; oversize paragraphs break into
// sentences; oversize sentences fall through to a hard token cut.
func splitUnits(text string, maxTokens, overlapTokens int) []string {
	var units []string
	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if openai.EstimateTokens(para) <= maxTokens {
			units = append(units, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if openai.EstimateTokens(sent) <= maxTokens {
				units = append(units, sent)
				continue
			}
			units = append(units, hardCut(sent, maxTokens, overlapTokens)...)
		}
	}
	return units
}

func splitSentences(para string) []string {
	marked := sentenceEnd.ReplaceAllString(para, "$1\x1f")
	var out []string
	for _, s := range strings.Split(marked, "\x1f") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// hardCut slices text into rune windows of maxTokens with a stride of
// (maxTokens - overlapTokens), so even boundary-free text chunks to
// ceil(tokens / (max - overlap)) overlapping windows.
func hardCut(text string, maxTokens, overlapTokens int) []string {
	runes := []rune(text)
	window := maxTokens * runesPerToken
	stride := (maxTokens - overlapTokens) * runesPerToken
	if stride <= 0 {
		stride = window
	}

	var out []string
	for start := 0; start < len(runes); start += stride {
		end := start + window
		if end > len(runes) {
			end = len(runes)
		}
		seg := strings.TrimSpace(string(runes[start:end]))
		if seg != "" {
			out = append(out, seg)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// packUnits greedily fills segments up to maxTokens and seeds each new
// segment with the trailing units of the previous one, up to overlapTokens.
func packUnits(units []string, maxTokens, overlapTokens int) []string {
	// Hard-cut windows already carry their own overlap; re-seeding them would
	// duplicate content, so a single oversize unit stream passes through.
	if len(units) == 1 {
		return units
	}

	var segments []string
	var current []string
	currentTokens := 0
	fresh := false // current holds at least one unit not yet emitted

	flush := func() {
		segments = append(segments, strings.Join(current, " "))

		// Carry whole trailing units into the next segment; when even the
		// last unit is bigger than the overlap budget, fall back to its
		// trailing sentences.
		var carry []string
		carryTokens := 0
		for i := len(current) - 1; i >= 0; i-- {
			ut := openai.EstimateTokens(current[i]) + 1
			if carryTokens+ut > overlapTokens {
				break
			}
			carry = append([]string{current[i]}, carry...)
			carryTokens += ut
		}
		if len(carry) == 0 && overlapTokens > 0 {
			sents := splitSentences(current[len(current)-1])
			var tail []string
			for i := len(sents) - 1; i >= 0; i-- {
				st := openai.EstimateTokens(sents[i]) + 1
				if carryTokens+st > overlapTokens {
					break
				}
				tail = append([]string{sents[i]}, tail...)
				carryTokens += st
			}
			if len(tail) > 0 && len(tail) < len(sents) {
				carry = []string{strings.Join(tail, " ")}
			} else {
				carryTokens = 0
			}
		}
		current = carry
		currentTokens = carryTokens
		fresh = false
	}

	for _, u := range units {
		// +1 covers the join separator so re-estimating a built segment
		// never lands above maxTokens.
		ut := openai.EstimateTokens(u) + 1
		if currentTokens+ut > maxTokens && len(current) > 0 {
			if fresh {
				flush()
			}
			// Overlap carry alone may still not leave room for the next unit.
			if currentTokens+ut > maxTokens {
				current = nil
				currentTokens = 0
			}
		}
		current = append(current, u)
		currentTokens += ut
		fresh = true
	}
	if fresh {
		segments = append(segments, strings.Join(current, " "))
	}
	return segments
}
