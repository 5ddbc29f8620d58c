package nlu

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
	"github.com/ledgervoice/ledgervoice-core/internal/vocabulary"
)

type staticTerms []vocabulary.Term

func (s staticTerms) ListActive(context.Context, int) ([]vocabulary.Term, error) {
	return s, nil
}

func testInterpreter(t *testing.T, terms TermSource) *Interpreter {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	in := NewInterpreter(config.Default().Interpreter, terms, log)
	in.now = func() time.Time {
		return time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	}
	return in
}

func findEntity(t *testing.T, cmd Command, typ EntityType) Entity {
	t.Helper()
	for _, e := range cmd.Entities {
		if e.Type == typ {
			return e
		}
	}
	t.Fatalf("entity %s not found in %+v", typ, cmd.Entities)
	return Entity{}
}

func TestParseExpenseWithAmountAndDescription(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "add expense of 500 for groceries")

	if cmd.Intent != IntentAddExpense {
		t.Fatalf("intent = %s, want ADD_EXPENSE", cmd.Intent)
	}
	amount := findEntity(t, cmd, EntityAmount)
	if amount.Value != "500" {
		t.Fatalf("amount = %q, want 500", amount.Value)
	}
	desc := findEntity(t, cmd, EntityDescription)
	if desc.Value != "groceries" {
		t.Fatalf("description = %q, want groceries", desc.Value)
	}
	if cmd.RequiresConfirmation {
		t.Fatal("routine expense should not require confirmation")
	}
	if cmd.SuggestedResponse != "Record expense of 500 for groceries." {
		t.Fatalf("unexpected suggested response %q", cmd.SuggestedResponse)
	}
	if len(Validate(cmd)) != 0 {
		t.Fatalf("expected valid command, got %v", Validate(cmd))
	}
}

func TestParseBalanceQueryHasNoAmount(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "what's the balance")

	if cmd.Intent != IntentQueryBalance {
		t.Fatalf("intent = %s, want QUERY_BALANCE", cmd.Intent)
	}
	for _, e := range cmd.Entities {
		if e.Type == EntityAmount {
			t.Fatalf("balance query must not carry an amount, got %+v", e)
		}
	}
}

func TestLargeAmountRequiresConfirmation(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "add expense of 15000 for cement")

	if !cmd.RequiresConfirmation {
		t.Fatal("amounts above the confirmation threshold must require confirmation")
	}
	if cmd.SuggestedResponse != "Record expense of 15000 for cement?" {
		t.Fatalf("confirmation prompt should be a question, got %q", cmd.SuggestedResponse)
	}
}

func TestLowScoreRequiresConfirmation(t *testing.T) {
	cfg := config.Default().Interpreter
	cfg.ConfirmBelowScore = 0.95
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	in := NewInterpreter(cfg, nil, log)

	cmd := in.Parse(context.Background(), "spent 50")
	if cmd.Intent != IntentAddExpense {
		t.Fatalf("intent = %s, want ADD_EXPENSE", cmd.Intent)
	}
	if !cmd.RequiresConfirmation {
		t.Fatalf("score %f below threshold must require confirmation", cmd.Confidence)
	}
}

func TestRepeatedAmountsKeepFirst(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "spent 500 rupees and 200 rupees on tea")

	var amounts []Entity
	for _, e := range cmd.Entities {
		if e.Type == EntityAmount {
			amounts = append(amounts, e)
		}
	}
	if len(amounts) != 1 {
		t.Fatalf("expected exactly one AMOUNT, got %d", len(amounts))
	}
	if amounts[0].Value != "500" {
		t.Fatalf("first amount must win, got %q", amounts[0].Value)
	}
	if amounts[0].Confidence != 0.9 {
		t.Fatalf("currency-marked amount confidence = %f, want 0.9", amounts[0].Confidence)
	}
}

func TestBareAmountLowerConfidence(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "add expense of 500 for groceries")
	if got := findEntity(t, cmd, EntityAmount).Confidence; got != 0.75 {
		t.Fatalf("bare amount confidence = %f, want 0.75", got)
	}
}

func TestEmptyInputIsUnknown(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "   ")

	if cmd.Intent != IntentUnknown {
		t.Fatalf("intent = %s, want UNKNOWN", cmd.Intent)
	}
	if cmd.Confidence != 0 {
		t.Fatalf("confidence = %f, want 0", cmd.Confidence)
	}
	if len(cmd.Entities) != 0 {
		t.Fatalf("expected no entities, got %+v", cmd.Entities)
	}
	if !cmd.RequiresConfirmation {
		t.Fatal("unknown commands must require confirmation")
	}
	if cmd.SuggestedResponse != unknownResponse {
		t.Fatalf("unexpected response %q", cmd.SuggestedResponse)
	}
}

func TestIntentOrderingPrefersReportOverNavigate(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "show me the monthly report")
	if cmd.Intent != IntentGenerateReport {
		t.Fatalf("intent = %s, want GENERATE_REPORT", cmd.Intent)
	}
}

func TestRelativeDateResolvesAgainstClock(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "add expense of 200 for chai yesterday")

	date := findEntity(t, cmd, EntityDate)
	if date.Value != "2024-03-09" {
		t.Fatalf("date = %q, want 2024-03-09", date.Value)
	}
	if date.Confidence != 0.95 {
		t.Fatalf("relative date confidence = %f, want 0.95", date.Confidence)
	}
}

func TestNumericDateIsNotAnAmount(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "paid for diesel on 15/03/2024")

	if cmd.Intent != IntentAddExpense {
		t.Fatalf("intent = %s, want ADD_EXPENSE", cmd.Intent)
	}
	date := findEntity(t, cmd, EntityDate)
	if date.Value != "2024-03-15" {
		t.Fatalf("date = %q, want 2024-03-15", date.Value)
	}
	if date.Confidence != 0.85 {
		t.Fatalf("numeric date confidence = %f, want 0.85", date.Confidence)
	}
	for _, e := range cmd.Entities {
		if e.Type == EntityAmount {
			t.Fatalf("date digits must not parse as an amount, got %+v", e)
		}
	}
	if desc := findEntity(t, cmd, EntityDescription); desc.Value != "diesel" {
		t.Fatalf("description = %q, want diesel", desc.Value)
	}
}

func TestMonthNameDate(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "record income of 3000 from Rajesh on 5th march")

	date := findEntity(t, cmd, EntityDate)
	if date.Value != "2024-03-05" {
		t.Fatalf("date = %q, want 2024-03-05", date.Value)
	}
	if date.Confidence != 0.8 {
		t.Fatalf("month-name date confidence = %f, want 0.8", date.Confidence)
	}
}

func TestPartyFromCapitalizedSpan(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "received 2000 from Sharma Traders")

	if cmd.Intent != IntentAddIncome {
		t.Fatalf("intent = %s, want ADD_INCOME", cmd.Intent)
	}
	party := findEntity(t, cmd, EntityParty)
	if party.Value != "Sharma Traders" {
		t.Fatalf("party = %q, want Sharma Traders", party.Value)
	}
	if party.Confidence != 0.8 {
		t.Fatalf("span party confidence = %f, want 0.8", party.Confidence)
	}
}

func TestPartyCanonicalizedThroughVocabulary(t *testing.T) {
	terms := staticTerms{
		{Spoken: "sharma traders", Mapped: "Sharma Traders Pvt Ltd", Category: "customer", Active: true},
	}
	in := testInterpreter(t, terms)
	cmd := in.Parse(context.Background(), "received 2000 from Sharma Traders")

	party := findEntity(t, cmd, EntityParty)
	if party.Value != "Sharma Traders Pvt Ltd" {
		t.Fatalf("party = %q, want canonical mapping", party.Value)
	}
	if party.Confidence != 0.85 {
		t.Fatalf("vocabulary party confidence = %f, want 0.85", party.Confidence)
	}
}

func TestPartyVocabularyMatchWithoutCapitals(t *testing.T) {
	terms := staticTerms{
		{Spoken: "mehta stores", Mapped: "Mehta Stores", Category: "supplier", Active: true},
	}
	in := testInterpreter(t, terms)
	cmd := in.Parse(context.Background(), "how much do we owe mehta stores")

	party := findEntity(t, cmd, EntityParty)
	if party.Value != "Mehta Stores" {
		t.Fatalf("party = %q, want Mehta Stores", party.Value)
	}
}

func TestCategoryExtraction(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "add expense of 120 for parking under travel")

	if cat := findEntity(t, cmd, EntityCategory); cat.Value != "travel" {
		t.Fatalf("category = %q, want travel", cat.Value)
	}
	if desc := findEntity(t, cmd, EntityDescription); desc.Value != "parking" {
		t.Fatalf("description = %q, want parking", desc.Value)
	}
}

func TestValidateFlagsMissingAmount(t *testing.T) {
	in := testInterpreter(t, nil)
	cmd := in.Parse(context.Background(), "add an expense for snacks")

	problems := Validate(cmd)
	if len(problems) != 1 {
		t.Fatalf("expected one problem, got %v", problems)
	}
	if problems[0] != "ADD_EXPENSE requires an amount" {
		t.Fatalf("unexpected problem %q", problems[0])
	}
}

func TestParseIsDeterministic(t *testing.T) {
	in := testInterpreter(t, nil)
	a := in.Parse(context.Background(), "add expense of 500 for groceries")
	b := in.Parse(context.Background(), "add expense of 500 for groceries")

	if a.Intent != b.Intent || a.Confidence != b.Confidence || len(a.Entities) != len(b.Entities) {
		t.Fatalf("parse must be deterministic: %+v vs %+v", a, b)
	}
	for i := range a.Entities {
		if a.Entities[i] != b.Entities[i] {
			t.Fatalf("entity %d differs: %+v vs %+v", i, a.Entities[i], b.Entities[i])
		}
	}
}
