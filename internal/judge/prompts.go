package judge

import (
	"encoding/json"
	"fmt"

	"trade-signal-engine/internal/bias"
	"trade-signal-engine/internal/confluence"
	"trade-signal-engine/internal/market"
)

// SystemPromptTradeDecision instructs the judge to act as an independent
// trade analyst and reply with strict JSON
const SystemPromptTradeDecision = `You are an expert technical analyst evaluating a potential trade. You receive multi-timeframe indicator data and a confluence summary for one instrument.

Respond with ONLY a JSON object in this exact format, no other text:
{
  "decision": "BUY" | "SELL" | "NO_TRADE",
  "confidence": <number 0-100>,
  "reasoning": "<one or two sentences>",
  "risk_level": "low" | "medium" | "high",
  "stop_loss": <price or 0>,
  "take_profit": <price or 0>
}

Be conservative: when the evidence is mixed or weak, answer NO_TRADE. Never invent data that is not in the input.`

// AnalysisContext is the single immutable input shared by every judge in
// a pool invocation. All judges see exactly the same serialization so
// consensus compares like with like.
type AnalysisContext struct {
	Instrument string                      `json:"instrument"`
	Timeframe  string                      `json:"timeframe"`
	Price      float64                     `json:"price"`
	Snapshots  []*market.IndicatorSnapshot `json:"snapshots"`
	Biases     []bias.TimeframeBias        `json:"timeframe_biases"`
	Confluence *confluence.Result          `json:"confluence"`
}

// BuildPrompt serializes the analysis context into the user prompt. The
// result is computed once per invocation and handed to every judge.
func BuildPrompt(ac *AnalysisContext) (string, error) {
	data, err := json.MarshalIndent(ac, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize analysis context: %w", err)
	}

	return fmt.Sprintf(`Analyze this instrument and decide BUY, SELL or NO_TRADE.

Instrument: %s
Signal timeframe: %s
Current price: %.8g

Full analysis context:
%s`, ac.Instrument, ac.Timeframe, ac.Price, string(data)), nil
}
