package domain

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock, Message: "title required"}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	err := RuleViolationError{Result: result}
	if !strings.Contains(err.Error(), "title required") {
		t.Fatalf("expected blocking message in error, got %q", err.Error())
	}
}

func TestRuleViolationErrorWithoutBlocking(t *testing.T) {
	err := RuleViolationError{Result: Result{Violations: []Violation{{Severity: SeverityWarn, Message: "no images"}}}}
	if err.Error() != "transaction blocked by rules" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
	if msgs := original.Messages(); len(msgs) != 1 {
		t.Fatalf("expected one message, got %v", msgs)
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"warn"})
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected violation")
	}
	if names := engine.Rules(); len(names) != 1 || names[0] != "warn" {
		t.Fatalf("unexpected rule names %v", names)
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type emptyView struct{}

func (emptyView) ListProperties() []Property            { return nil }
func (emptyView) FindProperty(string) (Property, bool) { return Property{}, false }
func (emptyView) ListLeads() []Lead                     { return nil }
func (emptyView) ListAdmins() []Admin                   { return nil }

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(errorRule{})
	if _, err := engine.Evaluate(context.Background(), emptyView{}, nil); err == nil {
		t.Fatalf("expected evaluation error")
	}
}

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	return Result{}, fmt.Errorf("boom")
}
