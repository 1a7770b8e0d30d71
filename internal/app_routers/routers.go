package approuters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/configuration"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func StartServer(container *configuration.Container) {
	h := container.Hub
	logger := container.Logger

	socketServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", container.Config.Server.SocketPort),
		Handler:     createSocketMux(container),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	appServer := createAppServer(container)

	// Channel to listen for errors from servers
	serverErrors := make(chan error, 2)

	go func() {
		logger.Info("socket server starting",
			zap.String("addr", fmt.Sprintf("ws://localhost:%d/%s", container.Config.Server.SocketPort, container.Config.Server.SocketRoute)),
		)
		if err := socketServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("socket server error: %w", err)
		}
	}()

	go func() {
		logger.Info("application server starting",
			zap.String("addr", fmt.Sprintf("http://localhost:%d", container.Config.Server.AppPort)),
		)
		if err := appServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("app server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("stopping hub and closing all WebSocket connections")
	h.Stop()

	if err := socketServer.Shutdown(ctx); err != nil {
		logger.Error("socket server shutdown error", zap.Error(err))
	}

	if err := appServer.Shutdown(ctx); err != nil {
		logger.Error("app server shutdown error", zap.Error(err))
	}

	logger.Info("graceful shutdown complete")
}

// The websocket endpoint has no write timeout: sessions are long lived.
func createSocketMux(container *configuration.Container) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/"+container.Config.Server.SocketRoute, container.Hub.ServeWS)
	return mux
}

func createAppServer(container *configuration.Container) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(container.Logger, container.Metrics))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     container.Config.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Pathshala messaging server is running",
		})
	})

	if container.Config.Metrics.Enabled {
		router.GET(container.Config.Metrics.Path, gin.WrapH(promhttp.HandlerFor(container.Registry, promhttp.HandlerOpts{})))
	}

	ChatRouters(router, container)
	UserRouters(router, container)
	MonitorRouters(router, container)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", container.Config.Server.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
