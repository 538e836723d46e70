package ingestion

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
	"github.com/claimsage/claimsage-backend/internal/platform/openai"
)

func TestChunkEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n\t  \n"} {
		got, err := Chunk(in, 500, 50)
		if err != nil {
			t.Fatalf("Chunk(%q): %v", in, err)
		}
		if len(got) != 0 {
			t.Fatalf("Chunk(%q) = %d segments, want 0", in, len(got))
		}
	}
}

func TestChunkBinaryInput(t *testing.T) {
	_, err := Chunk("plain text\x00with a null byte", 500, 50)
	if !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Fatalf("expected invalid_input error, got %v", err)
	}
	_, err = Chunk(string([]byte{0xff, 0xfe, 0x01}), 500, 50)
	if !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Fatalf("expected invalid_input error for invalid utf-8, got %v", err)
	}
}

func TestChunkOverlapValidation(t *testing.T) {
	_, err := Chunk("hello world", 100, 100)
	if !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Fatalf("expected invalid_input for overlap >= max, got %v", err)
	}
}

func TestChunkShortTextSingleSegment(t *testing.T) {
	text := "The veteran filed a claim. A rating decision followed."
	got, err := Chunk(text, 500, 50)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(got))
	}
	if got[0] != text {
		t.Fatalf("short text should survive unchanged, got %q", got[0])
	}
}

func TestChunkSegmentsRespectBudget(t *testing.T) {
	text := manySentences(300)
	got, err := Chunk(text, 120, 20)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(got))
	}
	for i, seg := range got {
		if n := openai.EstimateTokens(seg); n > 120 {
			t.Fatalf("segment %d has %d tokens, budget 120", i, n)
		}
	}
}

func TestChunkReconstructsText(t *testing.T) {
	text := manySentences(200)
	got, err := Chunk(text, 100, 15)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}

	rebuilt := got[0]
	for i := 1; i < len(got); i++ {
		rebuilt += "\n\n" + stripOverlap(rebuilt, got[i])
	}

	if !reflect.DeepEqual(strings.Fields(rebuilt), strings.Fields(text)) {
		t.Fatalf("concatenated segments minus overlap do not reconstruct input:\nwant %d words, got %d",
			len(strings.Fields(text)), len(strings.Fields(rebuilt)))
	}
}

func TestChunkConsecutiveSegmentsShareOverlap(t *testing.T) {
	text := manySentences(200)
	got, err := Chunk(text, 100, 30)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if overlapLen(got[i-1], got[i]) == 0 {
			t.Fatalf("segments %d and %d share no overlap", i-1, i)
		}
	}
}

// A 6,000-word boundary-free document must fall through to the hard token
// cut: chunk count equals ceil(tokens / (max - overlap)) and the overlap
// duplication pushes the summed word count above the original.
func TestChunkLongUnbrokenDocument(t *testing.T) {
	words := make([]string, 6000)
	for i := range words {
		words[i] = fmt.Sprintf("word%04d", i%977)
	}
	text := strings.Join(words, " ")

	got, err := Chunk(text, 500, 50)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}

	tokens := openai.EstimateTokens(text)
	want := int(math.Ceil(float64(tokens) / float64(500-50)))
	if len(got) != want {
		t.Fatalf("chunk count = %d, want ceil(%d/450) = %d", len(got), tokens, want)
	}

	totalWords := 0
	for _, seg := range got {
		totalWords += len(strings.Fields(seg))
	}
	if totalWords <= 6000 {
		t.Fatalf("summed word count %d should exceed 6000 due to overlap", totalWords)
	}
}

// manySentences builds paragraphs of short fixed-shape sentences.
func manySentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Sentence number %03d covers one small fact about the claim.", i)
		if (i+1)%5 == 0 {
			b.WriteString("\n\n")
		} else {
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

// stripOverlap removes the longest suffix of prev that prefixes cur.
func stripOverlap(prev, cur string) string {
	max := len(prev)
	if len(cur) < max {
		max = len(cur)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(prev, cur[:n]) {
			return strings.TrimSpace(cur[n:])
		}
	}
	return cur
}

func overlapLen(prev, cur string) int {
	max := len(prev)
	if len(cur) < max {
		max = len(cur)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(prev, cur[:n]) {
			return n
		}
	}
	return 0
}
