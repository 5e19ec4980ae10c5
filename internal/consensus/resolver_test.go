package consensus

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/judge"
	"trade-signal-engine/internal/market"
)

func thresholds(minConfidence float64, required bool) *calibrate.Thresholds {
	return &calibrate.Thresholds{
		MinConfidence:           minConfidence,
		ConsensusRequired:       required,
		ConsensusAgreementBonus: 0,
	}
}

func ok(id string, d market.Decision, conf float64) judge.Opinion {
	return judge.Opinion{JudgeID: id, Decision: d, Confidence: conf, Succeeded: true}
}

func TestResolveAllFailed(t *testing.T) {
	r := NewResolver(zerolog.Nop())

	dec := r.Resolve([]judge.Opinion{
		judge.Failed("claude", "timed out after 30s"),
		judge.Failed("openai", "connection refused"),
	}, thresholds(70, true))

	if dec.Decision != market.DecisionNoTrade {
		t.Fatalf("Expected NO_TRADE, got %s", dec.Decision)
	}
	if dec.Confidence != 0 {
		t.Errorf("Expected confidence 0, got %f", dec.Confidence)
	}
	if dec.Source != SourceNone {
		t.Errorf("Expected source %q, got %q", SourceNone, dec.Source)
	}
}

func TestResolveSingleFallback(t *testing.T) {
	r := NewResolver(zerolog.Nop())

	dec := r.Resolve([]judge.Opinion{
		ok("claude", market.DecisionBuy, 75),
		judge.Failed("openai", "timed out"),
	}, thresholds(70, true))

	if dec.Decision != market.DecisionBuy || dec.Confidence != 75 {
		t.Fatalf("Expected BUY@75 passed through, got %s@%f", dec.Decision, dec.Confidence)
	}
	if dec.ConsensusReached {
		t.Error("Single fallback is not consensus")
	}
	if dec.Source != SourceSingleFallback {
		t.Errorf("Expected source %q, got %q", SourceSingleFallback, dec.Source)
	}
}

func TestResolveAgreement(t *testing.T) {
	r := NewResolver(zerolog.Nop())

	dec := r.Resolve([]judge.Opinion{
		ok("claude", market.DecisionBuy, 82),
		ok("openai", market.DecisionBuy, 88),
	}, thresholds(70, true))

	if dec.Decision != market.DecisionBuy {
		t.Fatalf("Expected BUY, got %s", dec.Decision)
	}
	if dec.Confidence != 85 {
		t.Errorf("Expected mean confidence 85, got %f", dec.Confidence)
	}
	if !dec.ConsensusReached {
		t.Error("Expected consensusReached")
	}
	if dec.Source != SourceAgreement {
		t.Errorf("Expected source %q, got %q", SourceAgreement, dec.Source)
	}
}

func TestResolveAgreementBonusCapped(t *testing.T) {
	r := NewResolver(zerolog.Nop())
	th := thresholds(70, true)
	th.ConsensusAgreementBonus = 10

	dec := r.Resolve([]judge.Opinion{
		ok("claude", market.DecisionSell, 95),
		ok("openai", market.DecisionSell, 97),
	}, th)

	if dec.Decision != market.DecisionSell {
		t.Fatalf("Expected SELL, got %s", dec.Decision)
	}
	if dec.Confidence != 100 {
		t.Errorf("Expected bonus capped at 100, got %f", dec.Confidence)
	}
}

func TestResolveAgreementBelowThreshold(t *testing.T) {
	r := NewResolver(zerolog.Nop())

	dec := r.Resolve([]judge.Opinion{
		ok("claude", market.DecisionBuy, 55),
		ok("openai", market.DecisionBuy, 60),
	}, thresholds(70, true))

	if dec.Decision != market.DecisionNoTrade {
		t.Fatalf("Expected NO_TRADE below threshold, got %s", dec.Decision)
	}
	if dec.Confidence != 57.5 {
		t.Errorf("Expected computed mean 57.5, got %f", dec.Confidence)
	}
	if !strings.Contains(dec.Reason, "below threshold") {
		t.Errorf("Reason should name the threshold: %s", dec.Reason)
	}
}

func TestResolveDisagreementConsensusRequired(t *testing.T) {
	r := NewResolver(zerolog.Nop())

	dec := r.Resolve([]judge.Opinion{
		ok("claude", market.DecisionBuy, 90),
		ok("openai", market.DecisionSell, 90),
	}, thresholds(70, true))

	if dec.Decision != market.DecisionNoTrade {
		t.Fatalf("Expected NO_TRADE on disagreement, got %s", dec.Decision)
	}
	if dec.Confidence != 0 {
		t.Errorf("Expected confidence 0, got %f", dec.Confidence)
	}
	if !strings.Contains(dec.Reason, "disagree") {
		t.Errorf("Reason should name the disagreement: %s", dec.Reason)
	}
}

func TestResolveDisagreementHighestWins(t *testing.T) {
	r := NewResolver(zerolog.Nop())

	dec := r.Resolve([]judge.Opinion{
		ok("claude", market.DecisionBuy, 72),
		ok("openai", market.DecisionSell, 91),
	}, thresholds(70, false))

	if dec.Decision != market.DecisionSell || dec.Confidence != 91 {
		t.Fatalf("Expected SELL@91 to win, got %s@%f", dec.Decision, dec.Confidence)
	}
	if dec.Source != SourceHighestWinner {
		t.Errorf("Expected source %q, got %q", SourceHighestWinner, dec.Source)
	}
}

func TestResolveEqualConfidenceTieBreak(t *testing.T) {
	r := NewResolver(zerolog.Nop())

	// Equal confidence breaks to the earlier judge in configured order
	dec := r.Resolve([]judge.Opinion{
		ok("claude", market.DecisionBuy, 90),
		ok("openai", market.DecisionSell, 90),
	}, thresholds(70, false))

	if dec.Decision != market.DecisionBuy {
		t.Fatalf("Expected first judge to win the tie, got %s", dec.Decision)
	}
	if !strings.Contains(dec.Reason, "claude") {
		t.Errorf("Reason should name the winning judge: %s", dec.Reason)
	}
}

func TestResolveThreeJudgesDisagreement(t *testing.T) {
	r := NewResolver(zerolog.Nop())

	// Two of three agreeing is still disagreement under the strict policy
	dec := r.Resolve([]judge.Opinion{
		ok("claude", market.DecisionBuy, 80),
		ok("openai", market.DecisionBuy, 85),
		ok("deepseek", market.DecisionSell, 95),
	}, thresholds(70, true))

	if dec.Decision != market.DecisionNoTrade {
		t.Fatalf("Expected NO_TRADE, got %s", dec.Decision)
	}
}
