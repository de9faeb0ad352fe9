package contextmanager

// ContextConfig controls conversation seeding.
type ContextConfig struct {
	// Sent as the system message at the start of the conversation.
	SystemInstruction string `json:"system_instruction"`

	// User-role message injected when the client connects, prompting the bot
	// to introduce itself. Empty disables the scripted introduction.
	IntroductionTrigger string `json:"introduction_trigger"`

	// Seeded as the bot's opening line right after the system message, so
	// the model sees how it greeted the caller. Empty disables the seed.
	InitialBotMessage string `json:"initial_bot_message"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() ContextConfig {
	return ContextConfig{}
}
