package contextmanager

import (
	"context"
	"testing"

	"senabot/core"
	llmevents "senabot/events/llm"
	sttevents "senabot/events/stt"
	transportevents "senabot/events/transport"
)

func newAggregators(t *testing.T, config ContextConfig) (*ContextManager, *UserContextAggregator, *AssistantContextAggregator, chan *core.EventPacket, chan *core.EventPacket) {
	t.Helper()
	m := NewContextManager(config, core.GetLogger())
	user := m.GetUserContextAggregator()
	assistant := m.GetAssistantContextAggregator()

	nextChan := make(chan *core.EventPacket, 32)
	topChan := make(chan *core.EventPacket, 32)
	inputChan := make(chan *core.EventPacket, 32)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := user.Initialize(inputChan, nextChan, topChan, ctx); err != nil {
		t.Fatalf("user Initialize: %v", err)
	}
	if err := assistant.Initialize(inputChan, nextChan, topChan, ctx); err != nil {
		t.Fatalf("assistant Initialize: %v", err)
	}
	return m, user, assistant, nextChan, topChan
}

func receive(t *testing.T, ch chan *core.EventPacket) *core.EventPacket {
	t.Helper()
	select {
	case p := <-ch:
		return p
	default:
		t.Fatal("expected a packet")
		return nil
	}
}

func TestSeededContextOpensWithSystemAndGreeting(t *testing.T) {
	m := NewContextManager(ContextConfig{
		SystemInstruction: "be brief",
		InitialBotMessage: "Hello, how can I help?",
	}, core.GetLogger())

	msgs := m.Snapshot().Messages
	if len(msgs) != 2 {
		t.Fatalf("expected 2 seed messages, got %d", len(msgs))
	}
	if msgs[0].Role != core.LLMMessageRoleSystem || msgs[0].Message != "be brief" {
		t.Fatalf("unexpected system seed %+v", msgs[0])
	}
	if msgs[1].Role != core.LLMMessageRoleAssistant || msgs[1].Message != "Hello, how can I help?" {
		t.Fatalf("unexpected greeting seed %+v", msgs[1])
	}
}

func TestFinalTranscriptMintsTurnAndTriggersGeneration(t *testing.T) {
	m, user, _, nextChan, _ := newAggregators(t, ContextConfig{SystemInstruction: "be brief"})

	user.HandleEvent(core.NewEventPacket(&sttevents.STTFinalOutputEvent{Text: "hi there"}, core.EventRelayDestinationNextService, "test"))

	p := receive(t, nextChan)
	gen, ok := p.Event.(*llmevents.LLMGenerateResponseEvent)
	if !ok {
		t.Fatalf("expected generate event, got %T", p.Event)
	}
	if gen.Turn != 1 {
		t.Fatalf("expected turn 1, got %d", gen.Turn)
	}
	if m.Turns().Current() != 1 {
		t.Fatalf("turn counter not advanced")
	}
	msgs := gen.Context.Messages
	last := msgs[len(msgs)-1]
	if last.Role != core.LLMMessageRoleUser || last.Message != "hi there" {
		t.Fatalf("unexpected last message %+v", last)
	}
}

func TestNewerUtteranceSupersedesOlderTurn(t *testing.T) {
	m, user, _, nextChan, _ := newAggregators(t, ContextConfig{})

	user.HandleEvent(core.NewEventPacket(&sttevents.STTFinalOutputEvent{Text: "first"}, core.EventRelayDestinationNextService, "test"))
	first := receive(t, nextChan).Event.(*llmevents.LLMGenerateResponseEvent)
	user.HandleEvent(core.NewEventPacket(&sttevents.STTFinalOutputEvent{Text: "second"}, core.EventRelayDestinationNextService, "test"))
	second := receive(t, nextChan).Event.(*llmevents.LLMGenerateResponseEvent)

	if !m.Turns().IsStale(first.Turn) {
		t.Fatalf("older turn should be stale")
	}
	if m.Turns().IsStale(second.Turn) {
		t.Fatalf("newest turn must not be stale")
	}
}

func TestEmptyTranscriptIgnored(t *testing.T) {
	m, user, _, nextChan, _ := newAggregators(t, ContextConfig{})

	user.HandleEvent(core.NewEventPacket(&sttevents.STTFinalOutputEvent{Text: "   "}, core.EventRelayDestinationNextService, "test"))

	select {
	case p := <-nextChan:
		t.Fatalf("unexpected packet %s", p.Event.GetId())
	default:
	}
	if m.Turns().Current() != 0 {
		t.Fatalf("turn minted for empty transcript")
	}
}

func TestIntroductionTriggeredOnceOnConnect(t *testing.T) {
	_, user, _, nextChan, _ := newAggregators(t, ContextConfig{IntroductionTrigger: "Please introduce yourself."})

	connect := core.NewEventPacket(&transportevents.ClientConnectedEvent{StreamID: "s1", CallID: "c1"}, core.EventRelayDestinationBroadcast, "test")
	user.HandleEvent(connect)
	p := receive(t, nextChan)
	if _, ok := p.Event.(*llmevents.LLMGenerateResponseEvent); !ok {
		t.Fatalf("expected generate event on connect, got %T", p.Event)
	}

	user.HandleEvent(connect)
	select {
	case p := <-nextChan:
		if _, ok := p.Event.(*llmevents.LLMGenerateResponseEvent); ok {
			t.Fatal("introduction triggered twice")
		}
	default:
	}
}

func TestCompletedReplyCommittedForLiveTurnOnly(t *testing.T) {
	m, user, assistant, nextChan, _ := newAggregators(t, ContextConfig{})

	user.HandleEvent(core.NewEventPacket(&sttevents.STTFinalOutputEvent{Text: "question"}, core.EventRelayDestinationNextService, "test"))
	gen := receive(t, nextChan).Event.(*llmevents.LLMGenerateResponseEvent)

	assistant.HandleEvent(core.NewEventPacket(&llmevents.LLMResponseStartedEvent{Turn: gen.Turn}, core.EventRelayDestinationNextService, "test"))
	assistant.HandleEvent(core.NewEventPacket(&llmevents.LLMResponseCompletedEvent{FullText: "answer", Turn: gen.Turn}, core.EventRelayDestinationNextService, "test"))

	msgs := m.Snapshot().Messages
	last := msgs[len(msgs)-1]
	if last.Role != core.LLMMessageRoleAssistant || last.Message != "answer" {
		t.Fatalf("reply not committed: %+v", last)
	}

	// Output from a superseded turn must never touch the context.
	before := len(m.Snapshot().Messages)
	assistant.HandleEvent(core.NewEventPacket(&llmevents.LLMResponseCompletedEvent{FullText: "stale answer", Turn: gen.Turn - 1}, core.EventRelayDestinationNextService, "test"))
	if len(m.Snapshot().Messages) != before {
		t.Fatal("stale turn output was committed")
	}
}

func TestToolInvocationFeedsResultBack(t *testing.T) {
	m, user, assistant, nextChan, topChan := newAggregators(t, ContextConfig{})
	m.RegisterToolHandler(core.LLMTool{Name: "lookup", ToolId: "lookup"}, func(*map[string]any) (string, error) {
		return "42", nil
	})

	user.HandleEvent(core.NewEventPacket(&sttevents.STTFinalOutputEvent{Text: "look it up"}, core.EventRelayDestinationNextService, "test"))
	gen := receive(t, nextChan).Event.(*llmevents.LLMGenerateResponseEvent)

	assistant.HandleEvent(core.NewEventPacket(&llmevents.LLMToolInvocationRequestedEvent{ToolId: "lookup", Turn: gen.Turn}, core.EventRelayDestinationNextService, "test"))

	result := receive(t, nextChan)
	if _, ok := result.Event.(*llmevents.LLMToolInvocationResultEvent); !ok {
		t.Fatalf("expected tool result event, got %T", result.Event)
	}

	followup := receive(t, topChan)
	regen, ok := followup.Event.(*llmevents.LLMGenerateResponseEvent)
	if !ok {
		t.Fatalf("expected follow-up generation, got %T", followup.Event)
	}
	if regen.Turn != gen.Turn {
		t.Fatalf("follow-up generation must reuse the turn: got %d want %d", regen.Turn, gen.Turn)
	}

	msgs := m.Snapshot().Messages
	last := msgs[len(msgs)-1]
	if last.Role != core.LLMMessageRoleTool || last.Message != "42" {
		t.Fatalf("tool result not committed: %+v", last)
	}
}

func TestEndCallToolStopsSession(t *testing.T) {
	m, _, assistant, _, topChan := newAggregators(t, ContextConfig{})
	turn := m.Turns().Mint()

	assistant.HandleEvent(core.NewEventPacket(&llmevents.LLMToolInvocationRequestedEvent{ToolId: EndCallToolId, Turn: turn}, core.EventRelayDestinationNextService, "test"))

	p := receive(t, topChan)
	if _, ok := p.Event.(*core.EndCallEvent); !ok {
		t.Fatalf("expected end call event, got %T", p.Event)
	}
}
