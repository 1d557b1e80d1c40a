package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hallway/internal/api/auth"
	"github.com/hallway/internal/broadcast"
	"github.com/hallway/internal/chat"
	"github.com/hallway/internal/ws"
)

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
}

// NewServer creates a new API server around the delivery core. pollInterval
// is the reconciliation cadence advertised to clients on /chat/config.
func NewServer(port int, svc *chat.Service, broadcaster broadcast.Broadcaster, jwtSecret string, pollInterval time.Duration) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo: e,
		port: port,
	}

	server.setupRoutes(svc, broadcaster, jwtSecret, pollInterval)

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(svc *chat.Service, broadcaster broadcast.Broadcaster, jwtSecret string, pollInterval time.Duration) {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	h := &Handlers{svc: svc, pollInterval: pollInterval}
	gateway := ws.NewGateway(broadcaster, topicAuthorizer(svc))

	// API v1 group, everything behind auth
	v1 := s.echo.Group("/api/v1", auth.RequireAuth(jwtSecret))

	v1.GET("/chat/config", h.clientConfig)
	v1.POST("/chat/send", h.sendMessage)
	v1.GET("/chat/messages", h.fetchMessages)
	v1.POST("/chat/read", h.markRead)
	v1.PUT("/chat/message", h.editMessage)
	v1.DELETE("/chat/message", h.deleteMessage)

	v1.POST("/dm/thread", h.createThread)

	v1.GET("/sidebar", h.sidebar)

	v1.GET("/ws", gateway.Handle)
}

// Start begins the API server
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
