// Pepper conversational agent: low-latency speech-to-speech dialogue
// with barge-in and tool use, over OpenAI, Azure, x.ai, or Google
// realtime APIs.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pepperkit/go-pepper/internal/config"
	"github.com/pepperkit/go-pepper/internal/log"
	"github.com/pepperkit/go-pepper/pkg/gesture"
	"github.com/pepperkit/go-pepper/pkg/pepper"
)

func main() {
	settings := parseFlags()

	if settings.Debug {
		log.Init("debug")
	} else {
		log.Init("info")
	}

	app, err := pepper.New(settings)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if settings.Debug {
		app.SetPerformer(gesture.LogPerformer{})
	}

	if err := app.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// parseFlags loads settings from the environment, then lets flags
// override them.
func parseFlags() config.Settings {
	settings := config.FromEnv()

	provider := flag.String("provider", settings.Provider, "Speech provider: openai, azure, xai, gemini")
	model := flag.String("model", settings.Model, "Model or deployment name")
	voice := flag.String("voice", settings.Voice, "Voice name")
	dashboard := flag.String("dashboard", settings.DashboardAddr, "Dashboard listen address (empty disables)")
	noMic := flag.Bool("no-mic", false, "Disable microphone capture")
	debug := flag.Bool("debug", settings.Debug, "Enable verbose debug logging")
	flag.Parse()

	settings.Provider = *provider
	settings.Model = *model
	settings.Voice = *voice
	settings.DashboardAddr = *dashboard
	settings.Debug = *debug
	if *noMic {
		settings.UseRealtimeAudioInput = false
	}
	return settings
}
