package nlu

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
	"github.com/ledgervoice/ledgervoice-core/internal/vocabulary"
)

// maxPartyTerms bounds how much of the vocabulary is scanned per parse.
const maxPartyTerms = 256

// Command is the parsed form of one utterance. It is built once per parse
// and never mutated afterwards.
type Command struct {
	RawText              string
	Intent               Intent
	Entities             []Entity
	Confidence           float64
	RequiresConfirmation bool
	SuggestedResponse    string
	Timestamp            time.Time
}

// TermSource supplies active vocabulary terms for party resolution.
// *vocabulary.Store satisfies it.
type TermSource interface {
	ListActive(ctx context.Context, limit int) ([]vocabulary.Term, error)
}

type vocabTerm struct {
	spoken   string
	mapped   string
	category string
}

// Interpreter turns transcripts into commands using ordered keyword rules
// and regex entity extraction. Parsing is deterministic: the same text and
// vocabulary always produce the same command.
type Interpreter struct {
	cfg   config.InterpreterConfig
	terms TermSource
	log   *slog.Logger
	now   func() time.Time
}

func NewInterpreter(cfg config.InterpreterConfig, terms TermSource, log *slog.Logger) *Interpreter {
	return &Interpreter{
		cfg:   cfg,
		terms: terms,
		log:   log.With(slog.String("component", "interpreter")),
		now:   time.Now,
	}
}

// Parse classifies the text and extracts entities. It never fails: text that
// matches nothing becomes an UNKNOWN command that requires confirmation.
func (in *Interpreter) Parse(ctx context.Context, text string) Command {
	raw := strings.TrimSpace(text)
	ts := in.now().UTC()
	if raw == "" {
		return Command{
			RawText:              "",
			Intent:               IntentUnknown,
			Confidence:           0,
			RequiresConfirmation: true,
			SuggestedResponse:    unknownResponse,
			Timestamp:            ts,
		}
	}

	normalized := strings.ToLower(raw)
	intent := classify(normalized)
	entities := in.extract(ctx, raw, normalized)
	score := scoreCommand(raw, normalized, intent, entities)

	cmd := Command{
		RawText:    raw,
		Intent:     intent,
		Entities:   entities,
		Confidence: score,
		Timestamp:  ts,
	}
	cmd.RequiresConfirmation = in.needsConfirmation(cmd)
	cmd.SuggestedResponse = suggestResponse(cmd)
	return cmd
}

// extract runs every extractor in a fixed order and keeps the first entity
// of each type.
func (in *Interpreter) extract(ctx context.Context, raw, normalized string) []Entity {
	var entities []Entity
	if e, ok := extractAmount(normalized); ok {
		entities = append(entities, e)
	}
	if e, ok := extractDate(normalized, in.now()); ok {
		entities = append(entities, e)
	}
	if e, ok := extractDescription(normalized); ok {
		entities = append(entities, e)
	}
	if e, ok := extractCategory(normalized); ok {
		entities = append(entities, e)
	}
	if e, ok := extractParty(raw, normalized, in.loadTerms(ctx)); ok {
		entities = append(entities, e)
	}
	return dedupeEntities(entities)
}

func (in *Interpreter) loadTerms(ctx context.Context) []vocabTerm {
	if in.terms == nil {
		return nil
	}
	stored, err := in.terms.ListActive(ctx, maxPartyTerms)
	if err != nil {
		in.log.Warn("vocabulary lookup failed, parsing without party terms",
			slog.String("error", err.Error()))
		return nil
	}
	out := make([]vocabTerm, 0, len(stored))
	for _, t := range stored {
		out = append(out, vocabTerm{
			spoken:   strings.ToLower(t.Spoken),
			mapped:   t.Mapped,
			category: strings.ToLower(t.Category),
		})
	}
	return out
}

// scoreCommand produces the overall confidence. Longer, intent-matched text
// with a resolvable amount scores highest; very short fragments are
// penalized.
func scoreCommand(raw, normalized string, intent Intent, entities []Entity) float64 {
	score := 0.5

	wordBonus := float64(len(strings.Fields(normalized))) * 0.02
	if wordBonus > 0.2 {
		wordBonus = 0.2
	}
	score += wordBonus

	if intent != IntentUnknown {
		score += 0.2
	}
	if hasEntity(entities, EntityAmount) && moneyIntent(intent) {
		score += 0.1
	}
	if len([]rune(raw)) < 5 {
		score -= 0.1
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (in *Interpreter) needsConfirmation(cmd Command) bool {
	if cmd.Intent == IntentUnknown {
		return true
	}
	if cmd.Confidence < in.cfg.ConfirmBelowScore {
		return true
	}
	if v, ok := amountValue(cmd.Entities); ok && v > in.cfg.ConfirmAmountAbove {
		return true
	}
	return false
}

func moneyIntent(intent Intent) bool {
	switch intent {
	case IntentAddExpense, IntentAddIncome, IntentAddTransaction:
		return true
	}
	return false
}

func hasEntity(entities []Entity, typ EntityType) bool {
	_, ok := entityValue(entities, typ)
	return ok
}

func entityValue(entities []Entity, typ EntityType) (string, bool) {
	for _, e := range entities {
		if e.Type == typ {
			return e.Value, true
		}
	}
	return "", false
}

func amountValue(entities []Entity) (float64, bool) {
	raw, ok := entityValue(entities, EntityAmount)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Validate reports what a downstream executor would reject: money intents
// without an amount, record intents without a subject. An empty slice means
// the command is executable as parsed.
func Validate(cmd Command) []string {
	var problems []string
	switch cmd.Intent {
	case IntentAddExpense, IntentAddIncome, IntentAddTransaction:
		if !hasEntity(cmd.Entities, EntityAmount) {
			problems = append(problems, fmt.Sprintf("%s requires an amount", cmd.Intent))
		}
	case IntentAddParty, IntentAddProduct:
		if !hasEntity(cmd.Entities, EntityParty) && !hasEntity(cmd.Entities, EntityDescription) {
			problems = append(problems, fmt.Sprintf("%s requires a name", cmd.Intent))
		}
	case IntentUnknown:
		problems = append(problems, "utterance did not match any known action")
	}
	return problems
}

const unknownResponse = "I didn't catch that. Try something like: add expense of 500 for groceries."

// suggestResponse builds the short spoken reply the UI reads back to the
// user, phrased as a question whenever confirmation is required.
func suggestResponse(cmd Command) string {
	amount, hasAmount := entityValue(cmd.Entities, EntityAmount)
	desc, hasDesc := entityValue(cmd.Entities, EntityDescription)
	party, hasParty := entityValue(cmd.Entities, EntityParty)

	var b strings.Builder
	switch cmd.Intent {
	case IntentAddExpense:
		b.WriteString("Record expense")
		if hasAmount {
			b.WriteString(" of " + formatAmount(amount))
		}
		if hasDesc {
			b.WriteString(" for " + desc)
		}
	case IntentAddIncome:
		b.WriteString("Record income")
		if hasAmount {
			b.WriteString(" of " + formatAmount(amount))
		}
		if hasParty {
			b.WriteString(" from " + party)
		}
	case IntentAddTransaction:
		b.WriteString("Record transaction")
		if hasAmount {
			b.WriteString(" of " + formatAmount(amount))
		}
		if hasParty {
			b.WriteString(" with " + party)
		}
	case IntentAddParty:
		b.WriteString("Add new party")
		if hasParty {
			b.WriteString(" " + party)
		}
	case IntentAddProduct:
		b.WriteString("Add new product")
		if hasDesc {
			b.WriteString(" " + desc)
		}
	case IntentGenerateReport:
		b.WriteString("Generate report")
	case IntentQueryBalance:
		b.WriteString("Look up balance")
		if hasParty {
			b.WriteString(" for " + party)
		}
	case IntentNavigate:
		b.WriteString("Open the requested screen")
	default:
		return unknownResponse
	}

	if cmd.RequiresConfirmation {
		b.WriteString("?")
	} else {
		b.WriteString(".")
	}
	return b.String()
}
