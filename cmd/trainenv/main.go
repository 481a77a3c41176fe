// Command trainenv runs the training environment service (§4.7): one
// actor subprocess per training instance, reaped on idle timeout.
package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"sandboxrt/internal/logging"
	"sandboxrt/internal/trainenv"
)

func main() {
	debug := os.Getenv("SANDBOX_DEBUG") == "true"
	logger := logging.Default("trainenv", debug)

	port := envOr("SANDBOX_TRAINENV_PORT", "8100")
	cleanupInterval := envDuration("SANDBOX_TRAINENV_CLEANUP_INTERVAL", 30*time.Second)
	maxIdleTime := envDuration("SANDBOX_TRAINENV_MAX_IDLE", 10*time.Minute)

	svc := trainenv.New(trainenv.Config{
		CleanupInterval: cleanupInterval,
		MaxIdleTime:     maxIdleTime,
		Log:             logger,
	})
	defer svc.Shutdown()

	srv := trainenv.NewServer(svc)
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	srv.Register(e)

	addr := ":" + port
	logger.Info().Str("addr", addr).Msg("trainenv: listening")
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("trainenv: server stopped")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
