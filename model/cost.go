package model

import (
	"sync"
	"time"
)

// Pricing is the USD price per million tokens.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

var defaultPricing = map[string]Pricing{
	"claude-sonnet-4-0":          {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-sonnet-4-20250514":   {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-7-sonnet-latest":   {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-latest":    {InputPer1M: 0.80, OutputPer1M: 4.00},
	"gemini-2.5-flash":           {InputPer1M: 0.30, OutputPer1M: 2.50},
	"gemini-2.0-flash":           {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
}

// Call is one recorded completion.
type Call struct {
	Model        string
	Agent        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
}

// CostTracker accumulates token usage and cost across a run. Unknown models
// are recorded at zero cost.
type CostTracker struct {
	mu           sync.RWMutex
	pricing      map[string]Pricing
	calls        []Call
	total        float64
	byModel      map[string]float64
	inputTokens  int64
	outputTokens int64
}

// NewCostTracker returns a tracker using the built-in price table.
func NewCostTracker() *CostTracker {
	pricing := make(map[string]Pricing, len(defaultPricing))
	for k, v := range defaultPricing {
		pricing[k] = v
	}
	return &CostTracker{
		pricing: pricing,
		byModel: make(map[string]float64),
	}
}

// RecordLLMCall adds one call to the totals.
func (ct *CostTracker) RecordLLMCall(model string, inputTokens, outputTokens int, agent string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	p := ct.pricing[model]
	cost := float64(inputTokens)/1_000_000*p.InputPer1M + float64(outputTokens)/1_000_000*p.OutputPer1M

	ct.calls = append(ct.calls, Call{
		Model:        model,
		Agent:        agent,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
	})
	ct.total += cost
	ct.byModel[model] += cost
	ct.inputTokens += int64(inputTokens)
	ct.outputTokens += int64(outputTokens)
}

// SetPricing overrides the price of a model.
func (ct *CostTracker) SetPricing(model string, p Pricing) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = p
}

// TotalCost returns the accumulated cost in USD.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.total
}

// CostByModel returns a copy of the per-model totals.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make(map[string]float64, len(ct.byModel))
	for k, v := range ct.byModel {
		out[k] = v
	}
	return out
}

// Tokens returns the accumulated input and output token counts.
func (ct *CostTracker) Tokens() (input, output int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inputTokens, ct.outputTokens
}

// Calls returns a copy of the call history.
func (ct *CostTracker) Calls() []Call {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return append([]Call(nil), ct.calls...)
}
