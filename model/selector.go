package model

// AgentClass groups agents that share a model chain.
type AgentClass string

const (
	// Technical agents write, test and review code. They run at low
	// temperature on the strongest coding model.
	Technical AgentClass = "technical"
	// NonTechnical agents plan, coordinate and approve.
	NonTechnical AgentClass = "non_technical"
)

var technicalAgents = map[string]bool{
	"senior_engineer":            true,
	"senior_engineer_aggregator": true,
	"qa_engineer":                true,
	"unit_test_evaluator":        true,
	"self_review_evaluator":      true,
	"peer_review_evaluator":      true,
	"integration_test_evaluator": true,
}

// Classify returns the class of the named agent. Unknown agents are
// non-technical.
func Classify(agent string) AgentClass {
	if technicalAgents[agent] {
		return Technical
	}
	return NonTechnical
}

// Temperature returns the sampling temperature used for the class.
func (c AgentClass) Temperature() float64 {
	if c == Technical {
		return 0.1
	}
	return 0.3
}

// Selector hands each agent the chat model of its class.
type Selector struct {
	Technical    ChatModel
	NonTechnical ChatModel
}

// ForAgent returns the model for the named agent, falling back to the other
// class when only one is configured. It returns nil when neither is set.
func (s Selector) ForAgent(agent string) ChatModel {
	primary, secondary := s.NonTechnical, s.Technical
	if Classify(agent) == Technical {
		primary, secondary = s.Technical, s.NonTechnical
	}
	if primary != nil {
		return primary
	}
	return secondary
}
