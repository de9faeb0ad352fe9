package llm

import "senabot/core"

// LLMGenerateResponseEvent carries a context snapshot to the LLM stage.
// Turn is the token minted for this generation; everything the generation
// produces downstream is tagged with the same token.
type LLMGenerateResponseEvent struct {
	Context core.LLMContext `json:"context"`
	Turn    uint64          `json:"turn"`
}

func (*LLMGenerateResponseEvent) GetId() string {
	return "llm.generate_response"
}

type LLMResponseStartedEvent struct {
	Turn uint64
}

func (e *LLMResponseStartedEvent) GetId() string {
	return "llm.response_started"
}

type LLMResponseChunkEvent struct {
	Chunk string // A chunk of the LLM response text.
	Turn  uint64
}

func (e *LLMResponseChunkEvent) GetId() string {
	return "llm.response_chunk"
}

type LLMResponseCompletedEvent struct {
	FullText string // The complete LLM response text.
	Turn     uint64
}

func (e *LLMResponseCompletedEvent) GetId() string {
	return "llm.response_completed"
}

type LLMToolInvocationRequestedEvent struct {
	ToolId string
	Params *map[string]any
	Turn   uint64
}

func (e *LLMToolInvocationRequestedEvent) GetId() string {
	return "llm.tool_invocation_requested"
}

type LLMToolInvocationResultEvent struct {
	ToolId string
	Result string
	Turn   uint64
}

func (e *LLMToolInvocationResultEvent) GetId() string {
	return "llm.tool_invocation_result"
}
