// Package web serves the operator dashboard: live turn state and
// transcript over websockets, plus HTTP controls for typed messages,
// barge-in, manual tool triggers, and session restart.
package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/pepperkit/go-pepper/internal/log"
	"github.com/pepperkit/go-pepper/pkg/conversation"
	"github.com/pepperkit/go-pepper/pkg/hub"
)

// Controller is the slice of the conversation agent the dashboard
// drives.
type Controller interface {
	SendText(text string) error
	Interrupt()
	StartNewSession(ctx context.Context) error
}

// ToolTrigger executes a tool by name on behalf of the operator.
type ToolTrigger func(ctx context.Context, name string, args map[string]any) string

// State is the dashboard's view of the robot.
type State struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Connected bool   `json:"connected"`
	TurnState string `json:"turn_state"`
}

// Server is the dashboard HTTP and websocket server.
type Server struct {
	app  *fiber.App
	addr string

	controller Controller
	trigger    ToolTrigger
	toolNames  []string

	mu       sync.RWMutex
	state    State
	lastChat conversation.Snapshot

	stateHub *hub.Hub
	chatHub  *hub.Hub
}

// NewServer builds the dashboard around a controller.
func NewServer(addr string, controller Controller, trigger ToolTrigger, toolNames []string) *Server {
	s := &Server{
		addr:       addr,
		controller: controller,
		trigger:    trigger,
		toolNames:  toolNames,
		stateHub:   hub.New("state"),
		chatHub:    hub.New("chat"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Pepper Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/transcript", s.handleTranscript)
	api.Get("/tools", s.handleListTools)
	api.Post("/tools/:name", s.handleTriggerTool)
	api.Post("/message", s.handleMessage)
	api.Post("/interrupt", s.handleInterrupt)
	api.Post("/session/restart", s.handleRestart)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/chat", websocket.New(s.handleChatWS))

	s.app = app
	return s
}

// Start serves until Shutdown; call it in a goroutine.
func (s *Server) Start() error {
	go s.stateHub.Run()
	go s.chatHub.Run()
	log.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops the server and disconnects dashboard clients.
func (s *Server) Shutdown() error {
	s.stateHub.Stop()
	s.chatHub.Stop()
	return s.app.Shutdown()
}

// UpdateState mutates the dashboard state and broadcasts it.
func (s *Server) UpdateState(update func(*State)) {
	s.mu.Lock()
	update(&s.state)
	state := s.state
	s.mu.Unlock()
	s.stateHub.BroadcastJSON(state)
}

// PublishTranscript broadcasts a transcript snapshot. Wire it as the
// ChatState update callback.
func (s *Server) PublishTranscript(snap conversation.Snapshot) {
	s.mu.Lock()
	s.lastChat = snap
	s.mu.Unlock()
	s.chatHub.BroadcastJSON(snap)
}

func (s *Server) handleStateWS(c *websocket.Conn) {
	client := hub.NewClient(s.stateHub, c)
	s.mu.RLock()
	if data, err := json.Marshal(s.state); err == nil {
		client.Send(data)
	}
	s.mu.RUnlock()
	client.Run()
}

func (s *Server) handleChatWS(c *websocket.Conn) {
	client := hub.NewClient(s.chatHub, c)
	s.mu.RLock()
	if data, err := json.Marshal(s.lastChat); err == nil {
		client.Send(data)
	}
	s.mu.RUnlock()
	client.Run()
}

// requestTimeout bounds operator-triggered actions.
const requestTimeout = 15 * time.Second
