// Package triage wires the classifiers and the handoff builder into the
// chat and analyze flows.
package triage

import (
	"triage_server/core/domain"
	"triage_server/core/service/classification"
	"triage_server/core/service/handoff"
)

// Engine is the pure part of triage: message + state in, outcome out.
type Engine struct {
	analyzer *classification.Analyzer
	builder  *handoff.Builder
}

func NewEngine(analyzer *classification.Analyzer, builder *handoff.Builder) *Engine {
	return &Engine{analyzer: analyzer, builder: builder}
}

type Outcome struct {
	Assessment     domain.Assessment
	State          domain.ConversationState
	HandoffCreated bool
	HandoffUpdated bool
}

// NeedsHandoff reports whether a human agent owns the conversation.
func (o Outcome) NeedsHandoff() bool {
	return o.State.IsEscalated()
}

// Classify assesses msg and folds it into state. A blank message yields the
// baseline assessment and leaves the state as it was.
func (e *Engine) Classify(msg domain.Message, state domain.ConversationState) Outcome {
	if msg.IsBlank() {
		return Outcome{Assessment: e.analyzer.Assess(""), State: state.Clone()}
	}

	a := e.analyzer.Assess(msg.Text)
	res := e.builder.Apply(state, msg, a)
	return Outcome{
		Assessment:     a,
		State:          res.State,
		HandoffCreated: res.Created,
		HandoffUpdated: res.Updated,
	}
}

// Assess classifies text without touching any conversation.
func (e *Engine) Assess(text string) domain.Assessment {
	return e.analyzer.Assess(text)
}

// Seed folds request history into a brand-new conversation.
func (e *Engine) Seed(state domain.ConversationState, history []domain.Message) domain.ConversationState {
	return e.builder.Seed(state, history)
}
