package judge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"trade-signal-engine/internal/market"
)

// Opinion is one judge's verdict. Failures are represented explicitly so
// the consensus resolver can reason about them; a failed opinion carries
// only JudgeID and FailReason.
type Opinion struct {
	JudgeID    string          `json:"judge_id"`
	Decision   market.Decision `json:"decision"`
	Confidence float64         `json:"confidence"` // 0 to 100
	Reasoning  string          `json:"reasoning"`
	RiskLevel  string          `json:"risk_level"`
	StopLoss   float64         `json:"stop_loss,omitempty"`
	TakeProfit float64         `json:"take_profit,omitempty"`
	Succeeded  bool            `json:"succeeded"`
	FailReason string          `json:"fail_reason,omitempty"`
}

// Failed builds a failed opinion for one judge
func Failed(judgeID, reason string) Opinion {
	return Opinion{
		JudgeID:    judgeID,
		Decision:   market.DecisionNoTrade,
		Succeeded:  false,
		FailReason: reason,
	}
}

// rawOpinion is the wire shape judges are prompted to return
type rawOpinion struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	RiskLevel  string  `json:"risk_level"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// stripMarkdownCodeBlock removes markdown code fences some models wrap
// their JSON in
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	if matches := codeBlockRe.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}

// ParseOpinion converts a raw model response into an Opinion. This is a
// strict parse-or-fail boundary: a malformed response never propagates
// past it, it degrades to a failed opinion via the returned error.
func ParseOpinion(judgeID, response string) (Opinion, error) {
	clean := stripMarkdownCodeBlock(response)

	var raw rawOpinion
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return Opinion{}, fmt.Errorf("failed to parse judge response: %w", err)
	}

	decision := market.Decision(strings.ToUpper(strings.TrimSpace(raw.Decision)))
	switch decision {
	case market.DecisionBuy, market.DecisionSell, market.DecisionNoTrade:
	default:
		return Opinion{}, fmt.Errorf("invalid decision %q", raw.Decision)
	}

	if raw.Confidence < 0 || raw.Confidence > 100 {
		return Opinion{}, fmt.Errorf("confidence %.1f out of range", raw.Confidence)
	}

	return Opinion{
		JudgeID:    judgeID,
		Decision:   decision,
		Confidence: raw.Confidence,
		Reasoning:  raw.Reasoning,
		RiskLevel:  raw.RiskLevel,
		StopLoss:   raw.StopLoss,
		TakeProfit: raw.TakeProfit,
		Succeeded:  true,
	}, nil
}
