package executor

import (
	"fmt"
	"strings"

	"ai-orchestrator/internal/ai/llm"
	"ai-orchestrator/internal/models"
)

var assistantRoles = map[models.AssistantType]string{
	models.AssistantStreamlinedPlan:     "a startup advisor who writes concise one-page business plans",
	models.AssistantMarketAnalysis:      "a market analyst who sizes markets and maps competitors",
	models.AssistantFinancialProjection: "a startup finance analyst who builds projections from unit economics",
	models.AssistantGrowthStrategy:      "a growth strategist who designs channels and experiments",
	models.AssistantGeneral:             "a pragmatic business assistant",
}

func systemPrompt(a models.AssistantType) string {
	role, ok := assistantRoles[a]
	if !ok {
		role = assistantRoles[models.AssistantGeneral]
	}
	return "You are " + role + ". Be specific, use numbers when you have them and say when you are unsure."
}

func developerPrompt(plan models.PlannerOutput, hasTools bool) string {
	var b strings.Builder
	b.WriteString("Format the answer as markdown with one \"## \" heading per section, in this order:\n")
	for _, s := range plan.Sections {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("Cite document context as [R1], [R2] and web results as [W1], [W2], using only the numbers given to you. ")
	b.WriteString("Never invent a citation. Under Sources, list only what you cited.\n")
	b.WriteString("Do not promise guaranteed or risk-free outcomes.")
	if hasTools {
		b.WriteString("\nYou may call the provided tools when the context is not enough. Tool results carry the ref to cite.")
	}
	return b.String()
}

func userPrompt(p ExecuteParams, prep *preparation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request:\n%s\n", strings.TrimSpace(p.Request.Input))
	if p.Plan.Task != "" {
		fmt.Fprintf(&b, "\nTask:\n%s\n", p.Plan.Task)
	}

	if p.Request.Extra != nil && p.Request.Extra.Market != nil {
		m := p.Request.Extra.Market
		b.WriteString("\nMarket context:\n")
		if m.Industry != "" {
			fmt.Fprintf(&b, "- industry: %s\n", m.Industry)
		}
		if m.Region != "" {
			fmt.Fprintf(&b, "- region: %s\n", m.Region)
		}
		if len(m.Competitors) > 0 {
			fmt.Fprintf(&b, "- known competitors: %s\n", strings.Join(m.Competitors, ", "))
		}
	}

	if prep.retrieval != nil && len(prep.retrieval.Context.Chunks) > 0 {
		rag, _ := prep.book.snapshot()
		b.WriteString("\nDocument context:\n")
		for i, ch := range prep.retrieval.Context.Chunks {
			fmt.Fprintf(&b, "[R%d] %s\n%s\n\n", i+1, rag[i].Title, strings.TrimSpace(ch.Content))
		}
	}

	if _, web := prep.book.snapshot(); len(web) > 0 {
		b.WriteString("\nWeb results:\n")
		for i, w := range web {
			fmt.Fprintf(&b, "[W%d] %s (%s)\n%s\n\n", i+1, w.Title, w.URL, w.Snippet)
		}
	}

	if prep.finance != nil {
		b.WriteString("\nFinance model (computed, use these numbers as given):\n")
		b.WriteString(prep.finance.Summary())
	}

	return b.String()
}

func buildConversation(p ExecuteParams, prep *preparation, hasTools bool) llm.Conversation {
	return llm.NewConversation(
		llm.SystemMessage(systemPrompt(p.Request.Assistant)),
		llm.DeveloperMessage(developerPrompt(p.Plan, hasTools)),
		llm.UserMessage(userPrompt(p, prep)),
	)
}
