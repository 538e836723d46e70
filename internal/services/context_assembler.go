package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/claimsage/claimsage-backend/internal/platform/openai"
	"github.com/claimsage/claimsage-backend/internal/retrieval"
	"github.com/claimsage/claimsage-backend/internal/types"
)

const (
	DefaultContextBudgetTokens = 6000

	maxPriorAnalyses = 3
)

// PromptMessage is one ordered turn handed to the completion model.
type PromptMessage struct {
	Role    types.Role
	Content string
}

// AssembledPrompt is the bounded model input: one context block plus the
// ordered message list ending with the new user message.
type AssembledPrompt struct {
	ContextBlock string
	Messages     []PromptMessage

	// DroppedFragments and DroppedAnalyses record what truncation removed.
	DroppedFragments int
	DroppedAnalyses  int
	DroppedTurns     int
}

// AssembleContext merges retrieved fragments, prior document analyses and
// conversation history into a prompt bounded by budgetTokens. Ordering:
// fragments first (most relevant first), then prior analyses (most recent
// upload first), then history in chronological order, then the new user
// message last. When the total exceeds the budget, content is dropped in
// fixed order: least relevant fragments, then oldest analyses, then oldest
// history turns. The newest turn and the user's own message are never
// dropped, even if the result still exceeds the budget.
func AssembleContext(
	fragments []retrieval.Fragment,
	priorAnalyses []*types.Document,
	history []*types.ChatMessage,
	userMessage string,
	budgetTokens int,
) *AssembledPrompt {
	if budgetTokens <= 0 {
		budgetTokens = DefaultContextBudgetTokens
	}

	frags := make([]retrieval.Fragment, len(fragments))
	copy(frags, fragments)

	analyses := make([]*types.Document, 0, len(priorAnalyses))
	for _, d := range priorAnalyses {
		if d != nil && strings.TrimSpace(d.Analysis) != "" {
			analyses = append(analyses, d)
		}
	}
	// Most recently uploaded first, capped.
	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
	})
	if len(analyses) > maxPriorAnalyses {
		analyses = analyses[:maxPriorAnalyses]
	}

	turns := make([]*types.ChatMessage, 0, len(history))
	for _, m := range history {
		if m != nil && strings.TrimSpace(m.Content) != "" {
			turns = append(turns, m)
		}
	}

	out := &AssembledPrompt{}

	total := openai.EstimateTokens(userMessage)
	for _, f := range frags {
		total += openai.EstimateTokens(f.Text) + 8
	}
	for _, d := range analyses {
		total += openai.EstimateTokens(d.Analysis) + 8
	}
	for _, m := range turns {
		total += openai.EstimateTokens(m.Content) + 4
	}

	// Victims in fixed order: fragments by ascending similarity, then oldest
	// analyses, then oldest turns (newest turn protected).
	for total > budgetTokens && len(frags) > 0 {
		idx := 0
		for i := 1; i < len(frags); i++ {
			if frags[i].Similarity < frags[idx].Similarity {
				idx = i
			}
		}
		total -= openai.EstimateTokens(frags[idx].Text) + 8
		frags = append(frags[:idx], frags[idx+1:]...)
		out.DroppedFragments++
	}
	for total > budgetTokens && len(analyses) > 0 {
		last := len(analyses) - 1
		total -= openai.EstimateTokens(analyses[last].Analysis) + 8
		analyses = analyses[:last]
		out.DroppedAnalyses++
	}
	for total > budgetTokens && len(turns) > 1 {
		total -= openai.EstimateTokens(turns[0].Content) + 4
		turns = turns[1:]
		out.DroppedTurns++
	}

	out.ContextBlock = renderContextBlock(frags, analyses)

	out.Messages = make([]PromptMessage, 0, len(turns)+1)
	for _, m := range turns {
		out.Messages = append(out.Messages, PromptMessage{Role: m.Role, Content: m.Content})
	}
	out.Messages = append(out.Messages, PromptMessage{Role: types.RoleUser, Content: userMessage})

	return out
}

func renderContextBlock(frags []retrieval.Fragment, analyses []*types.Document) string {
	var b strings.Builder

	docFrags := make([]retrieval.Fragment, 0, len(frags))
	kbFrags := make([]retrieval.Fragment, 0, len(frags))
	for _, f := range frags {
		if f.Kind == retrieval.KindKnowledgeEntry {
			kbFrags = append(kbFrags, f)
		} else {
			docFrags = append(docFrags, f)
		}
	}

	if len(docFrags) > 0 {
		b.WriteString("Relevant excerpts from the veteran's own documents:\n")
		for i, f := range docFrags {
			fmt.Fprintf(&b, "[Document excerpt %d]\n%s\n\n", i+1, strings.TrimSpace(f.Text))
		}
	}
	if len(kbFrags) > 0 {
		b.WriteString("Relevant reference knowledge:\n")
		for i, f := range kbFrags {
			title := strings.TrimSpace(f.Title)
			if title == "" {
				title = fmt.Sprintf("Reference %d", i+1)
			}
			fmt.Fprintf(&b, "[%s]\n%s\n\n", title, strings.TrimSpace(f.Text))
		}
	}
	if len(analyses) > 0 {
		b.WriteString("Summaries of the veteran's previously analyzed documents (most recent first):\n")
		for _, d := range analyses {
			name := strings.TrimSpace(d.Name)
			if name == "" {
				name = d.ID.String()
			}
			fmt.Fprintf(&b, "[%s]\n%s\n\n", name, strings.TrimSpace(d.Analysis))
		}
	}

	return strings.TrimSpace(b.String())
}

// RenderTranscript flattens the ordered messages into the single user payload
// sent to the completion provider, with the context block ahead of the
// conversation.
func (p *AssembledPrompt) RenderTranscript() string {
	var b strings.Builder
	if p.ContextBlock != "" {
		b.WriteString(p.ContextBlock)
		b.WriteString("\n\n---\n\n")
	}
	for i, m := range p.Messages {
		switch m.Role {
		case types.RoleAssistant:
			b.WriteString("Assistant: ")
		case types.RoleSystem:
			b.WriteString("Note: ")
		default:
			b.WriteString("Veteran: ")
		}
		b.WriteString(strings.TrimSpace(m.Content))
		if i < len(p.Messages)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
