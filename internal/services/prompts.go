package services

import (
	"fmt"
	"strings"

	"github.com/claimsage/claimsage-backend/internal/types"
)

const chunkAnalysisSystemPrompt = `You are an assistant that explains VA disability paperwork to veterans.
Analyze the given section of a document in plain language. Note diagnoses,
rating percentages, effective dates, examiner findings and anything the
veteran may want to act on. Be concise and factual; do not invent content
that is not in the section.`

func chunkAnalysisUserPrompt(doc *types.Document, chunk *types.DocumentChunk) string {
	return fmt.Sprintf(
		"Document: %s (%s)\nSection %d of %d:\n\n%s",
		doc.Name, docTypeLabel(doc.DocType), chunk.ChunkIndex+1, chunk.TotalChunks, chunk.Text,
	)
}

const combineSystemPrompt = `You are an assistant that explains VA disability paperwork to veterans.
Combine the section analyses below into one coherent plain-language summary
of the whole document: what it says, what ratings or decisions it contains,
and what the veteran should know or do next. Do not repeat section headers.`

func combineUserPrompt(doc *types.Document, parts []string) string {
	return fmt.Sprintf(
		"Document: %s (%s)\n\n%s",
		doc.Name, docTypeLabel(doc.DocType), strings.Join(parts, "\n\n"),
	)
}

func combineFallbackPrompt(doc *types.Document, lead string) string {
	return fmt.Sprintf(
		"Document: %s (%s)\nSummarize the following content in plain language for the veteran:\n\n%s",
		doc.Name, docTypeLabel(doc.DocType), lead,
	)
}

func docTypeLabel(t string) string {
	switch t {
	case types.DocTypeExamReport:
		return "C&P exam report"
	case types.DocTypeRatingDecision:
		return "rating decision"
	case types.DocTypeDBQ:
		return "disability benefits questionnaire"
	default:
		return "document"
	}
}

const chatSystemPrompt = `You are ClaimSage, an assistant that helps veterans understand their VA
disability claims, ratings and paperwork. Ground every answer in the provided
document excerpts, reference knowledge and conversation. If the context does
not contain the answer, say so plainly instead of guessing. Never give legal
or medical advice; suggest consulting a VSO or professional where appropriate.`
