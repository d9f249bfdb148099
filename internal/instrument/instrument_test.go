package instrument

import (
	"strings"
	"testing"

	"github.com/lumicore/sandrun/pkg/models"
)

const sampleSource = `import json
import numpy as np

def main():
    try:
        process()
    except ValueError as e:
        print(e)

main()
`

func TestInject_InsertsAfterAnchors(t *testing.T) {
	out, err := Inject(sampleSource)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}

	if !strings.Contains(out, Sentinel) {
		t.Fatal("Inject: expected output to contain the sentinel token")
	}

	wantTraces := strings.Count(sampleSource, "import ") + strings.Count(sampleSource, "try:") +
		strings.Count(sampleSource, "except")
	gotTraces := strings.Count(out, Sentinel)
	if gotTraces != wantTraces {
		t.Errorf("Inject: got %d trace lines, want %d", gotTraces, wantTraces)
	}
}

func TestInject_IdempotentOnAlreadyInjectedSource(t *testing.T) {
	once, err := Inject(sampleSource)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	twice, err := Inject(once)
	if err != nil {
		t.Fatalf("Inject (second pass): %v", err)
	}

	if once != twice {
		t.Error("Inject: expected a second pass over already-injected source to be a no-op")
	}
}

func TestStrip_RestoresOriginalSource(t *testing.T) {
	injected, err := Inject(sampleSource)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}

	stripped := Strip(injected)
	if stripped != sampleSource {
		t.Errorf("Strip did not restore the original source.\ngot:\n%s\nwant:\n%s", stripped, sampleSource)
	}
}

func TestStrip_NoSentinelIsNoop(t *testing.T) {
	if got := Strip(sampleSource); got != sampleSource {
		t.Error("Strip: expected source without the sentinel to pass through unchanged")
	}
}

func TestShouldInject_RequiresOptIn(t *testing.T) {
	session := &models.Session{}
	outcomes := []models.LogOutcome{models.OutcomeFailure, models.OutcomeFailure}

	if ShouldInject(session, outcomes, 2, false) {
		t.Error("ShouldInject: expected false when the caller did not opt in")
	}
}

func TestShouldInject_BelowThreshold(t *testing.T) {
	session := &models.Session{}
	outcomes := []models.LogOutcome{models.OutcomeFailure}

	if ShouldInject(session, outcomes, 2, true) {
		t.Error("ShouldInject: expected false with only one consecutive failure against a threshold of two")
	}
}

func TestShouldInject_AtThreshold(t *testing.T) {
	session := &models.Session{}
	outcomes := []models.LogOutcome{models.OutcomeFailure, models.OutcomeFailure}

	if !ShouldInject(session, outcomes, 2, true) {
		t.Error("ShouldInject: expected true at exactly the configured threshold")
	}
}

func TestShouldInject_SuccessResetsStreak(t *testing.T) {
	session := &models.Session{}
	outcomes := []models.LogOutcome{models.OutcomeFailure, models.OutcomeSuccess, models.OutcomeFailure}

	if ShouldInject(session, outcomes, 2, true) {
		t.Error("ShouldInject: expected a success in between to reset the consecutive-failure streak")
	}
}

func TestShouldInject_NilSession(t *testing.T) {
	outcomes := []models.LogOutcome{models.OutcomeFailure, models.OutcomeFailure}

	if ShouldInject(nil, outcomes, 2, true) {
		t.Error("ShouldInject: expected false for a nil session")
	}
}
