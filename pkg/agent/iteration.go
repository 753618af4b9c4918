package agent

// TurnState tracks loop state across the turns of one agent run.
type TurnState struct {
	CurrentTurn int
	MaxTurns    int
	ToolCalls   int
	ToolErrors  int
	Usage       TokenUsage
}

// Exhausted reports whether no turns remain.
func (s *TurnState) Exhausted() bool {
	return s.CurrentTurn >= s.MaxTurns
}

// RecordResponse accounts for one LLM reply.
func (s *TurnState) RecordResponse(resp *LLMResponse) {
	s.Usage.Add(resp.Usage)
	s.ToolCalls += len(resp.ToolCalls)
}

// RecordToolResult accounts for one executed tool call.
func (s *TurnState) RecordToolResult(result *ToolResult) {
	if result.IsError {
		s.ToolErrors++
	}
}
