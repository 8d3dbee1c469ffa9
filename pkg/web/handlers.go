package web

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(s.state)
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(s.lastChat)
}

func (s *Server) handleListTools(c *fiber.Ctx) error {
	return c.JSON(s.toolNames)
}

type triggerToolRequest struct {
	Args map[string]any `json:"args"`
}

func (s *Server) handleTriggerTool(c *fiber.Ctx) error {
	if s.trigger == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "tool trigger not configured"})
	}
	name := c.Params("name")

	var req triggerToolRequest
	if err := c.BodyParser(&req); err != nil {
		req.Args = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	result := s.trigger(ctx, name, req.Args)
	return c.JSON(fiber.Map{"tool": name, "result": result})
}

type messageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text required"})
	}
	if err := s.controller.SendText(req.Text); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"sent": true})
}

func (s *Server) handleInterrupt(c *fiber.Ctx) error {
	s.controller.Interrupt()
	return c.JSON(fiber.Map{"interrupted": true})
}

func (s *Server) handleRestart(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := s.controller.StartNewSession(ctx); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"restarted": true})
}
