package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"senabot/constants"
	"senabot/core"
	"senabot/factories"
	activitycontrol "senabot/handlers/activity_control"
	contexthandler "senabot/handlers/context"
	"senabot/handlers/transport"
	cartesiatts "senabot/services/cartesia/tts"
	deepgramstt "senabot/services/deepgram/stt"
	gladiastt "senabot/services/gladia/stt"
	openaillm "senabot/services/openai/llm"

	"github.com/joho/godotenv"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	settings, apiKeys := loadSettingsFromEnv()
	runWorkerMode(ctx, settings, apiKeys)

	core.GetLogger().Info("Shutting down...")
	time.Sleep(2 * time.Second)
}

// loadSettingsFromEnv loads SettingsConfig from file or SETTINGS_JSON_B64 env
// var, and API keys from env vars.
func loadSettingsFromEnv() (factories.SettingsConfig, factories.APIKeys) {
	var settings factories.SettingsConfig
	var err error

	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		data, decErr := base64.StdEncoding.DecodeString(b64)
		if decErr != nil {
			core.GetLogger().With(map[string]any{"error": decErr}).Error("failed to decode SETTINGS_JSON_B64")
			settings = factories.DefaultSettingsConfig()
		} else {
			settings, err = factories.SettingsConfigFromJSON(data)
			if err != nil {
				core.GetLogger().With(map[string]any{"error": err}).Error("failed to parse SETTINGS_JSON_B64")
				settings = factories.DefaultSettingsConfig()
			} else {
				core.GetLogger().Info("loaded settings from SETTINGS_JSON_B64")
			}
		}
	} else {
		settingsPath := getEnv("SETTINGS_PATH", "./settings.json")
		settings, err = factories.SettingsConfigFromFile(settingsPath)
		if err != nil {
			core.GetLogger().With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
			settings = factories.DefaultSettingsConfig()
		}
	}

	apiKeys := factories.APIKeys{
		OpenAI:     getEnv("OPENAI_API_KEY", ""),
		Groq:       getEnv("GROQ_API_KEY", ""),
		Together:   getEnv("TOGETHER_API_KEY", ""),
		DeepSeek:   getEnv("DEEPSEEK_API_KEY", ""),
		OpenRouter: getEnv("OPENROUTER_API_KEY", ""),
		Mistral:    getEnv("MISTRAL_API_KEY", ""),
		Deepgram:   getEnv("DEEPGRAM_API_KEY", ""),
		Gladia:     getEnv("GLADIA_API_KEY", ""),
		Cartesia:   getEnv("CARTESIA_API_KEY", ""),
	}

	return settings, apiKeys
}

// defaultSessionConfig builds the fallback session used when settings carry
// no session config: Gladia STT when a key is present, Deepgram otherwise,
// OpenAI for generation and Cartesia for synthesis.
func defaultSessionConfig(apiKeys factories.APIKeys) factories.SessionConfig {
	cfg := factories.DefaultSessionConfig()

	if apiKeys.Gladia != "" {
		gladiaCfg := gladiastt.DefaultConfig()
		cfg.STT.ServiceConfig.GladiaConfig = &gladiaCfg
	} else {
		deepgramCfg := deepgramstt.DefaultConfig()
		cfg.STT.ServiceConfig.DeepgramConfig = &deepgramCfg
	}

	llmCfg := openaillm.DefaultConfig()
	cfg.LLM.ServiceConfig.OpenAIConfig = &llmCfg

	ttsCfg := cartesiatts.DefaultConfig()
	ttsCfg.VoiceID = constants.DefaultCartesiaVoiceID
	cfg.TTS.ServiceConfig.CartesiaConfig = &ttsCfg

	return cfg
}

// runWorkerMode starts the agent using the configured TransportProvider
// pattern.
func runWorkerMode(ctx context.Context, settings factories.SettingsConfig, apiKeys factories.APIKeys) {
	logger := core.GetLogger().With(map[string]any{"component": "worker"})
	logger.Info("starting in worker mode")

	timeoutSeconds := getEnvAsInt("WORKER_TIMEOUT_SECONDS", 3000)

	worker, err := settings.Transport.GetProvider(logger)
	if err != nil {
		logger.With(map[string]any{"error": err}).Error("failed to create worker")
		return
	}

	pipeline := factories.NewPipeline(func(svc transport.ITransportService, jobCtx context.Context) ([]core.IHandler, error) {
		sessionLogger := core.SessionLoggerFromContext(jobCtx)
		if sessionLogger == nil {
			sessionLogger = logger
		}

		transportWrapper := transport.NewTransportHandlerWrapper(svc, transport.DefaultConfig(), sessionLogger)

		var sessionCfg factories.SessionConfig
		switch {
		case settings.SessionAPI != nil:
			fetched, fetchErr := settings.SessionAPI.Fetch()
			if fetchErr != nil {
				sessionLogger.With(map[string]any{"error": fetchErr}).Error("failed to fetch session config from API, ending session")
				return nil, fmt.Errorf("session api fetch failed: %w", fetchErr)
			}
			sessionCfg = fetched
		case settings.Session != nil:
			sessionCfg = *settings.Session
		default:
			sessionCfg = defaultSessionConfig(apiKeys)
		}
		if sessionCfg.Context.SystemInstruction == "" {
			sessionCfg.Context.SystemInstruction = constants.SystemInstruction
		}
		if sessionCfg.Context.IntroductionTrigger == "" {
			sessionCfg.Context.IntroductionTrigger = constants.FallbackIntroductionTrigger
		}
		if sessionCfg.Context.InitialBotMessage == "" {
			sessionCfg.Context.InitialBotMessage = constants.InitialBotMessage
		}
		sessionCfg.InjectAPIKeys(apiKeys)

		handlers, err := sessionCfg.BuildHandlers(sessionLogger)
		if err != nil {
			return nil, err
		}

		handlers.ContextManager.RegisterToolHandler(core.LLMTool{
			ToolId:      "transfer_to_human",
			Name:        "transfer_to_human",
			Description: constants.TransferToHumanToolDescription,
			Parameters: []core.Parameter{
				{
					Name:        "reason",
					Description: "Brief reason for the transfer.",
					Required:    true,
					Type:        core.LLMParameterTypeString,
				},
			},
		}, func(params *map[string]any) (string, error) {
			reason := "unspecified"
			if params != nil {
				if v, ok := (*params)["reason"].(string); ok {
					reason = v
				}
			}
			sessionLogger.With(map[string]any{"reason": reason}).Info("transfer_to_human requested")
			return "Transfer initiated. A live agent will be with the caller shortly.", nil
		})

		handlers.ContextManager.RegisterToolHandler(core.LLMTool{
			ToolId:      contexthandler.EndCallToolId,
			Name:        contexthandler.EndCallToolId,
			Description: "End the call. Use when the caller says goodbye or the conversation has clearly finished.",
		}, func(*map[string]any) (string, error) {
			return "", nil
		})

		activityControlHandler := activitycontrol.NewActivityControlHandler(activitycontrol.DefaultConfig(), sessionLogger)

		// TransportInput → VAD → STT → UserContext → LLM → AssistantContext → TTS → ActivityControl → TransportOutput
		return []core.IHandler{
			transportWrapper.GetInputHandler(),
			handlers.VAD,
			handlers.STT,
			handlers.ContextManager.GetUserContextAggregator(),
			handlers.LLM,
			handlers.ContextManager.GetAssistantContextAggregator(),
			handlers.TTS,
			activityControlHandler,
			transportWrapper.GetOutputHandler(),
		}, nil
	}, factories.PipelineConfig{
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, logger)

	pipeline.Serve(worker, ctx)
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a default fallback
func getEnvAsInt(key string, defaultValue int) int {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}
