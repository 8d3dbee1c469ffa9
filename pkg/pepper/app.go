// Package pepper assembles the conversational agent: session, playback,
// capture, tools, gestures, and the operator dashboard.
package pepper

import (
	"context"
	"fmt"
	"time"

	"github.com/pepperkit/go-pepper/internal/config"
	"github.com/pepperkit/go-pepper/internal/log"
	"github.com/pepperkit/go-pepper/pkg/audio"
	"github.com/pepperkit/go-pepper/pkg/audioio"
	"github.com/pepperkit/go-pepper/pkg/conversation"
	"github.com/pepperkit/go-pepper/pkg/gesture"
	"github.com/pepperkit/go-pepper/pkg/session"
	"github.com/pepperkit/go-pepper/pkg/tools"
	"github.com/pepperkit/go-pepper/pkg/tools/bundled"
	"github.com/pepperkit/go-pepper/pkg/turn"
	"github.com/pepperkit/go-pepper/pkg/web"
)

// connectTimeout bounds the initial session handshake.
const connectTimeout = 30 * time.Second

// App is the assembled robot agent.
type App struct {
	settings config.Settings

	agent     *conversation.Agent
	srv       *web.Server
	src       audioio.Source
	performer gesture.Performer
}

// New validates settings and returns an uninitialized app.
func New(settings config.Settings) (*App, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &App{settings: settings, performer: gesture.NoOp{}}, nil
}

// SetPerformer installs the gesture backend; call before Init.
func (a *App) SetPerformer(p gesture.Performer) {
	a.performer = p
}

// Agent exposes the conversation agent for embedders.
func (a *App) Agent() *conversation.Agent { return a.agent }

// Init builds the component graph.
func (a *App) Init() error {
	s := a.settings

	registry := tools.NewRegistry()
	if s.ToolEnabled("get_datetime") {
		registry.Register(bundled.Datetime())
	}
	if s.ToolEnabled("get_weather") {
		registry.Register(bundled.Weather(nil))
	}
	if s.ToolEnabled("search_youtube_video") && s.YouTubeKey != "" {
		registry.Register(bundled.YouTubeSearch(s.YouTubeKey))
	}

	command, args := audio.DefaultALSAArgs(s.OutputSampleRate)
	sink := audio.NewExecSink(command, args, s.OutputSampleRate)

	// The dashboard and the agent reference each other, so the
	// transcript callback indirects through the field set below.
	agent, err := conversation.NewAgent(a.sessionConfig(), sink, registry, func(snap conversation.Snapshot) {
		if a.srv != nil {
			a.srv.PublishTranscript(snap)
		}
	})
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}
	a.agent = agent

	if s.DashboardAddr != "" {
		trigger := func(ctx context.Context, name string, args map[string]any) string {
			return registry.Execute(ctx, name, args)
		}
		a.srv = web.NewServer(s.DashboardAddr, agent, trigger, registry.Names())
		a.srv.UpdateState(func(st *web.State) {
			st.Provider = s.Provider
			st.Model = s.Model
			st.TurnState = turn.Idle.String()
		})
	}

	performer := a.performer
	agent.Turns.OnChange = func(old, new turn.State) {
		performer.TurnChanged(old, new)
		if s.MuteMicWhileSpeaking {
			// Muted through the whole server half of the turn: while
			// the model thinks and while its audio plays.
			agent.SetMicMuted(new == turn.Thinking || new == turn.Speaking)
		}
		if a.srv != nil {
			a.srv.UpdateState(func(st *web.State) {
				st.TurnState = new.String()
				st.Connected = agent.Session.Connected()
			})
		}
	}

	if s.UseRealtimeAudioInput {
		src, err := audioio.NewSource(a.captureConfig())
		if err != nil {
			return fmt.Errorf("build capture: %w", err)
		}
		a.src = src
	}
	return nil
}

// Run connects and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.srv != nil {
		go func() {
			if err := a.srv.Start(); err != nil {
				log.Error("dashboard server", "error", err)
			}
		}()
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := a.agent.Start(connectCtx); err != nil {
		return fmt.Errorf("connect session: %w", err)
	}
	log.Info("session up", "provider", a.settings.Provider, "model", a.settings.Model,
		"tools", a.agent.Tools.Names())

	if a.src != nil {
		go func() {
			if err := a.agent.PumpMic(ctx, a.src, a.settings.InputSampleRate); err != nil {
				log.Error("microphone pump", "error", err)
			}
		}()
	}

	<-ctx.Done()
	return nil
}

// Shutdown tears the app down in reverse order.
func (a *App) Shutdown() {
	if a.src != nil {
		a.src.Close()
	}
	if a.srv != nil {
		if err := a.srv.Shutdown(); err != nil {
			log.Warn("dashboard shutdown", "error", err)
		}
	}
	if a.agent != nil {
		if err := a.agent.Close(); err != nil {
			log.Warn("agent shutdown", "error", err)
		}
	}
}

// sessionConfig maps settings onto the session configuration, picking
// the key that matches the provider.
func (a *App) sessionConfig() session.Config {
	s := a.settings

	var key string
	provider := session.Provider(s.Provider)
	switch provider {
	case session.ProviderOpenAI:
		key = s.OpenAIKey
	case session.ProviderAzure:
		key = s.AzureKey
	case session.ProviderXAI:
		key = s.XAIKey
	case session.ProviderGemini:
		key = s.GoogleKey
	}

	return session.Config{
		Provider:           provider,
		Model:              s.Model,
		APIKey:             key,
		AzureEndpoint:      s.AzureEndpoint,
		Voice:              s.Voice,
		Speed:              s.Speed,
		Temperature:        s.Temperature,
		Instructions:       s.SystemPrompt,
		InputSampleRate:    s.InputSampleRate,
		OutputSampleRate:   s.OutputSampleRate,
		TurnDetection:      s.TurnDetectionType,
		VADThreshold:       s.VADThreshold,
		PrefixPadding:      s.PrefixPadding,
		SilenceDuration:    s.SilenceDuration,
		Eagerness:          s.Eagerness,
		IdleTimeout:        s.IdleTimeout,
		NoiseReduction:     noiseReduction(s.NoiseReduction),
		TranscriptionModel:  s.TranscriptionModel,
		Language:            s.TranscriptionLanguage,
		TranscriptionPrompt: s.TranscriptionPrompt,
	}
}

func (a *App) captureConfig() audioio.Config {
	cfg := audioio.DefaultConfig()
	cfg.SampleRate = a.settings.InputSampleRate
	return cfg
}

func noiseReduction(v string) string {
	if v == config.NoiseReductionOff || v == "" {
		return ""
	}
	return v
}
