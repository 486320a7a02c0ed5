package executor

import (
	"fmt"
	"regexp"
	"strings"

	"ai-orchestrator/internal/models"
)

const (
	DisclaimerSection = "Disclaimer"

	disclaimerText = "This content is for informational purposes only and is not financial, investment, tax or legal advice. " +
		"Figures are estimates based on the inputs provided. Consult a qualified professional before acting on them."

	warningBanner = "⚠️ This response did not pass automated policy checks (%s). Review it carefully before relying on it."
)

const (
	RuleGuaranteedReturns       = "guaranteed_returns"
	RuleEmptyResponse           = "empty_response"
	RuleAdviceWithoutDisclaimer = "advice_without_disclaimer"
	RuleUnsupportedCitation     = "unsupported_citation"
	RuleMissingSections         = "missing_sections"
)

var (
	guaranteePattern = regexp.MustCompile(`(?i)\b(guaranteed?|risk[- ]free)\b|\b100\s?%\s+returns?\b`)
	advicePattern    = regexp.MustCompile(`(?i)\b(financial|investment|legal|tax)\s+advice\b|\byou\s+should\s+(buy|sell|invest|sue)\b`)
	disclaimerHint   = regexp.MustCompile(`(?i)\bnot\s+(financial|investment|legal|tax)\b.*\badvice\b|\bdisclaimer\b`)
)

// PolicyInput is what the rules look at.
type PolicyInput struct {
	Assistant   models.AssistantType
	Raw         string
	Sections    models.Sections
	Unsupported int
	Missing     []string
}

// EvaluatePolicy runs every rule and returns the issues found.
func EvaluatePolicy(in PolicyInput) []models.PolicyIssue {
	var issues []models.PolicyIssue
	add := func(rule string, sev models.Severity, msg string) {
		issues = append(issues, models.PolicyIssue{Rule: rule, Severity: sev, Message: msg})
	}

	if strings.TrimSpace(in.Raw) == "" {
		add(RuleEmptyResponse, models.SeverityError, "model returned an empty response")
	}
	if m := promisedOutcome(in.Raw); m != "" {
		add(RuleGuaranteedReturns, models.SeverityError, fmt.Sprintf("response promises certain outcomes (%q)", m))
	}
	if advicePattern.MatchString(in.Raw) && !hasDisclaimer(in) {
		add(RuleAdviceWithoutDisclaimer, models.SeverityWarning, "response gives advice without a disclaimer")
	}
	if in.Unsupported > 0 {
		add(RuleUnsupportedCitation, models.SeverityWarning, fmt.Sprintf("%d citation marker(s) of an unsupported type", in.Unsupported))
	}
	if len(in.Missing) > 0 {
		add(RuleMissingSections, models.SeverityWarning, "missing sections: "+strings.Join(in.Missing, ", "))
	}
	return issues
}

func hasDisclaimer(in PolicyInput) bool {
	if in.Sections.Has(DisclaimerSection) {
		return true
	}
	return disclaimerHint.MatchString(in.Raw)
}

// applyDisclaimer adds the Disclaimer section for financial assistants.
func applyDisclaimer(assistant models.AssistantType, sections *models.Sections) {
	if assistant.IsFinancial() && !sections.Has(DisclaimerSection) {
		sections.Set(DisclaimerSection, disclaimerText)
	}
}

// applyBanner prepends the warning banner when any issue is an error.
func applyBanner(issues []models.PolicyIssue, sections *models.Sections) bool {
	var rules []string
	for _, issue := range issues {
		if issue.Severity == models.SeverityError {
			rules = append(rules, issue.Rule)
		}
	}
	if len(rules) == 0 {
		return false
	}

	banner := fmt.Sprintf(warningBanner, strings.Join(rules, ", "))
	if len(*sections) == 0 {
		sections.Set(SummarySection, banner)
		return true
	}
	sections.PrependToFirst(banner)
	return true
}

var negationWords = map[string]bool{
	"not": true, "no": true, "never": true, "nothing": true, "none": true, "without": true,
	"isn't": true, "aren't": true, "cannot": true, "can't": true, "nor": true,
}

// promisedOutcome returns the first guarantee phrase that is not negated by
// one of the three words before it, so "returns are not guaranteed" passes.
func promisedOutcome(text string) string {
	for _, loc := range guaranteePattern.FindAllStringIndex(text, -1) {
		if !negated(text[:loc[0]]) {
			return text[loc[0]:loc[1]]
		}
	}
	return ""
}

func negated(prefix string) bool {
	words := strings.Fields(strings.ToLower(prefix))
	if len(words) > 3 {
		words = words[len(words)-3:]
	}
	for _, w := range words {
		if negationWords[strings.Trim(w, ".,;:!?\"'()")] {
			return true
		}
	}
	return false
}
