package nlu

import "regexp"

// Intent is the closed-set classification of what ledger action an utterance
// requests.
type Intent string

const (
	IntentAddExpense     Intent = "ADD_EXPENSE"
	IntentAddIncome      Intent = "ADD_INCOME"
	IntentAddTransaction Intent = "ADD_TRANSACTION"
	IntentAddParty       Intent = "ADD_PARTY"
	IntentAddProduct     Intent = "ADD_PRODUCT"
	IntentGenerateReport Intent = "GENERATE_REPORT"
	IntentQueryBalance   Intent = "QUERY_BALANCE"
	IntentNavigate       Intent = "NAVIGATE"
	IntentUnknown        Intent = "UNKNOWN"
)

type intentRule struct {
	intent   Intent
	patterns []*regexp.Regexp
}

// intentRules is evaluated top to bottom against the normalized text; the
// first rule with any matching pattern wins and no further rules are tried.
// The ordering is user-observable behavior, not an implementation detail:
// reordering entries changes how ambiguous utterances classify.
var intentRules = []intentRule{
	{IntentAddExpense, compileAll(
		`\b(add|record|log)( an?)? expense\b`,
		`\bexpense of\b`,
		`\bspent\b`,
		`\bpaid for\b`,
	)},
	{IntentAddIncome, compileAll(
		`\b(add|record|log)( an?)? income\b`,
		`\bincome of\b`,
		`\breceived\b`,
		`\bgot paid\b`,
	)},
	{IntentAddTransaction, compileAll(
		`\b(add|record|log)( a)? transaction\b`,
	)},
	{IntentAddParty, compileAll(
		`\b(add|create|new)( an?)? (party|customer|supplier|vendor|contact)\b`,
	)},
	{IntentAddProduct, compileAll(
		`\b(add|create|new)( an?)? (product|item|service)\b`,
	)},
	{IntentGenerateReport, compileAll(
		`\breport\b`,
		`\bstatement\b`,
		`\bsummary\b`,
	)},
	{IntentQueryBalance, compileAll(
		`\bbalance\b`,
		`\bhow much\b`,
	)},
	{IntentNavigate, compileAll(
		`\b(open|go to|navigate to|take me to|show)\b`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// classify returns the first matching intent, or IntentUnknown.
func classify(normalized string) Intent {
	for _, rule := range intentRules {
		for _, p := range rule.patterns {
			if p.MatchString(normalized) {
				return rule.intent
			}
		}
	}
	return IntentUnknown
}
