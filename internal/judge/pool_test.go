package judge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trade-signal-engine/internal/market"
)

type fakeCaller struct {
	response string
	err      error
	delay    time.Duration
}

func (f *fakeCaller) Complete(ctx context.Context, _, _ string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testContext() *AnalysisContext {
	return &AnalysisContext{
		Instrument: "BTCUSDT",
		Timeframe:  "1h",
		Price:      50000,
	}
}

const buyResponse = `{"decision":"BUY","confidence":85,"reasoning":"strong uptrend","risk_level":"medium","stop_loss":49000,"take_profit":52000}`

func TestPoolCollectAllSucceed(t *testing.T) {
	pool, err := NewPool([]Judge{
		{ID: "claude", Caller: &fakeCaller{response: buyResponse}},
		{ID: "openai", Caller: &fakeCaller{response: `{"decision":"SELL","confidence":60,"reasoning":"resistance","risk_level":"high"}`}},
	}, time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	opinions, err := pool.Collect(context.Background(), testContext())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if len(opinions) != 2 {
		t.Fatalf("Expected 2 opinions, got %d", len(opinions))
	}
	// Results come back in configured judge order
	if opinions[0].JudgeID != "claude" || opinions[1].JudgeID != "openai" {
		t.Errorf("Opinions out of order: %s, %s", opinions[0].JudgeID, opinions[1].JudgeID)
	}
	if !opinions[0].Succeeded || opinions[0].Decision != market.DecisionBuy || opinions[0].Confidence != 85 {
		t.Errorf("Unexpected first opinion: %+v", opinions[0])
	}
	if !opinions[1].Succeeded || opinions[1].Decision != market.DecisionSell {
		t.Errorf("Unexpected second opinion: %+v", opinions[1])
	}
}

func TestPoolDegradesFailedJudge(t *testing.T) {
	pool, err := NewPool([]Judge{
		{ID: "claude", Caller: &fakeCaller{response: buyResponse}},
		{ID: "broken", Caller: &fakeCaller{err: errors.New("connection refused")}},
	}, time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	opinions, err := pool.Collect(context.Background(), testContext())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if !opinions[0].Succeeded {
		t.Error("Healthy judge should succeed")
	}
	if opinions[1].Succeeded {
		t.Error("Broken judge should be marked failed")
	}
	if opinions[1].FailReason == "" {
		t.Error("Failed opinion must carry a reason")
	}
}

func TestPoolTimesOutSlowJudge(t *testing.T) {
	pool, err := NewPool([]Judge{
		{ID: "fast", Caller: &fakeCaller{response: buyResponse}},
		{ID: "slow", Caller: &fakeCaller{response: buyResponse, delay: 500 * time.Millisecond}},
	}, 50*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	start := time.Now()
	opinions, err := pool.Collect(context.Background(), testContext())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if opinions[1].Succeeded {
		t.Error("Slow judge should time out")
	}
	if !opinions[0].Succeeded {
		t.Error("Fast judge should not be affected by slow judge")
	}
	// Total latency is bounded by the timeout, not the judge's delay
	if elapsed > 300*time.Millisecond {
		t.Errorf("Pool took %v, should be bounded by the judge timeout", elapsed)
	}
}

func TestPoolRejectsMalformedResponse(t *testing.T) {
	pool, err := NewPool([]Judge{
		{ID: "rambler", Caller: &fakeCaller{response: "I think you should definitely buy this."}},
	}, time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	opinions, err := pool.Collect(context.Background(), testContext())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if opinions[0].Succeeded {
		t.Error("Malformed response must degrade to a failed opinion")
	}
}

func TestPoolRequiresJudges(t *testing.T) {
	if _, err := NewPool(nil, time.Second, zerolog.Nop()); err == nil {
		t.Fatal("Expected error for zero judges")
	}
}

func TestParseOpinionStripsCodeFences(t *testing.T) {
	response := "```json\n" + buyResponse + "\n```"

	op, err := ParseOpinion("claude", response)
	if err != nil {
		t.Fatalf("ParseOpinion failed: %v", err)
	}
	if op.Decision != market.DecisionBuy || op.Confidence != 85 {
		t.Errorf("Unexpected opinion: %+v", op)
	}
	if op.StopLoss != 49000 || op.TakeProfit != 52000 {
		t.Errorf("Expected levels preserved, got SL=%f TP=%f", op.StopLoss, op.TakeProfit)
	}
}

func TestParseOpinionInvalidDecision(t *testing.T) {
	if _, err := ParseOpinion("x", `{"decision":"HOLD","confidence":50}`); err == nil {
		t.Fatal("Expected error for unknown decision")
	}
}

func TestParseOpinionConfidenceRange(t *testing.T) {
	if _, err := ParseOpinion("x", `{"decision":"BUY","confidence":150}`); err == nil {
		t.Fatal("Expected error for out-of-range confidence")
	}
}

func TestParseOpinionLowercaseDecision(t *testing.T) {
	op, err := ParseOpinion("x", `{"decision":"no_trade","confidence":0,"reasoning":"flat"}`)
	if err != nil {
		t.Fatalf("ParseOpinion failed: %v", err)
	}
	if op.Decision != market.DecisionNoTrade {
		t.Errorf("Expected NO_TRADE, got %s", op.Decision)
	}
}

func TestPoolBreakerSkipsDeadJudge(t *testing.T) {
	caller := &fakeCaller{err: errors.New("connection refused")}
	pool, err := NewPool([]Judge{{ID: "dead", Caller: caller}}, time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	// Trip the breaker with repeated transport failures
	for i := 0; i < 5; i++ {
		if _, err := pool.Collect(context.Background(), testContext()); err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
	}

	opinions, err := pool.Collect(context.Background(), testContext())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if opinions[0].Succeeded {
		t.Fatal("Expected failed opinion from open breaker")
	}
	if !strings.Contains(opinions[0].FailReason, "circuit open") {
		t.Errorf("Expected circuit-open reason, got %q", opinions[0].FailReason)
	}

	// The skipped call never reached the caller
	caller.err = nil
	caller.response = buyResponse
	opinions, err = pool.Collect(context.Background(), testContext())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if opinions[0].Succeeded {
		t.Error("Expected breaker to keep rejecting inside cooldown")
	}
}
