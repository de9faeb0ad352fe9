package core

type LLMMessageRole string

const (
	LLMMessageRoleUser      LLMMessageRole = "user"
	LLMMessageRoleAssistant LLMMessageRole = "assistant"
	LLMMessageRoleSystem    LLMMessageRole = "system"
	LLMMessageRoleTool      LLMMessageRole = "tool"
)

// LLMMessage represents a message exchanged with the LLM.
type LLMMessage struct {
	Role    LLMMessageRole `json:"role"`    // Role of the message sender (user, assistant, system, tool).
	Message string         `json:"message"` // Content of the message.
}

type LLMParamterType string

const (
	LLMParameterTypeString  LLMParamterType = "string"
	LLMParameterTypeInteger LLMParamterType = "number"
	LLMParameterTypeBoolean LLMParamterType = "boolean"
	LLMParameterTypeObject  LLMParamterType = "object"
)

// Parameter represents a parameter for an LLM tool.
type Parameter struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Required    bool            `json:"required"`
	Example     string          `json:"example"`
	Type        LLMParamterType `json:"type"`
}

// LLMTool represents a tool that can be used by the LLM.
type LLMTool struct {
	Name        string      `json:"name"`
	ToolId      string      `json:"tool_id"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters,omitempty"`
}

// LLMContext holds the conversation history plus the tools exposed to the
// model. Snapshots handed to the LLM stage are value copies — mutating the
// live context after a snapshot was taken never changes an in-flight request.
type LLMContext struct {
	Messages []LLMMessage
	Tools    []LLMTool
}

func (c *LLMContext) AddUserMessage(text string) {
	c.Messages = append(c.Messages, LLMMessage{Role: LLMMessageRoleUser, Message: text})
}

func (c *LLMContext) AddAssistantMessage(text string) {
	c.Messages = append(c.Messages, LLMMessage{Role: LLMMessageRoleAssistant, Message: text})
}

func (c *LLMContext) AddSystemMessage(text string) {
	c.Messages = append(c.Messages, LLMMessage{Role: LLMMessageRoleSystem, Message: text})
}

func (c *LLMContext) AddToolMessage(text string) {
	c.Messages = append(c.Messages, LLMMessage{Role: LLMMessageRoleTool, Message: text})
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c *LLMContext) Clone() LLMContext {
	msgs := make([]LLMMessage, len(c.Messages))
	copy(msgs, c.Messages)
	tools := make([]LLMTool, len(c.Tools))
	copy(tools, c.Tools)
	return LLMContext{Messages: msgs, Tools: tools}
}

// LLMToolCall represents a call to an LLM tool.
type LLMToolCall struct {
	ToolId     string          `json:"tool_id"`
	Parameters *map[string]any `json:"parameters,omitempty"`
}
