package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/adapters"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/adapters/capture"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/adapters/llm"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/adapters/tts"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/internal/api"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/internal/auth"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/internal/websocket"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded environment from .env file")
	}

	if err := auth.InitSecret(); err != nil {
		logger.Fatal("Auth initialization failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize adapters
	deviceRepo := adapters.NewMemoryDeviceRepository()
	if err := deviceRepo.SeedFromEnv(ctx); err != nil {
		logger.Fatal("Device seeding failed", zap.Error(err))
	}

	captureProvider := newCaptureProvider(logger)
	source := newResponseSource(ctx, logger)
	synth, synthFallback := newSynthesizers(logger)

	// The hub is both the event sink and the audio player for the
	// hands-free loop, so it is created first and bound to the service
	// afterwards.
	hub := websocket.NewHub(logger)
	service := usecase.NewHandsFreeService(usecase.HandsFreeDeps{
		Capture:       captureProvider,
		Source:        source,
		Synth:         synth,
		SynthFallback: synthFallback,
		Player:        hub,
		Sink:          hub,
	}, usecase.NewConfigFromEnv(), logger)
	hub.BindService(service)

	go hub.Run()
	go service.Run(ctx)

	// Initialize API routes
	api.InitRoutes(e, hub, service, deviceRepo, logger)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	service.Disable()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newCaptureProvider picks the speech recognizer from CAPTURE_PROVIDER.
// Defaults to Google Cloud when credentials are present, the mock
// otherwise.
func newCaptureProvider(logger *zap.Logger) repositories.CaptureProvider {
	provider := os.Getenv("CAPTURE_PROVIDER")
	if provider == "" {
		if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
			provider = "google"
		} else if os.Getenv("ASSEMBLYAI_API_KEY") != "" {
			provider = "assemblyai"
		} else {
			provider = "mock"
		}
	}

	switch provider {
	case "google":
		c, err := capture.NewGoogleCapture(capture.GoogleCaptureConfig{}, logger)
		if err != nil {
			logger.Fatal("Google capture initialization failed", zap.Error(err))
		}
		logger.Info("Using Google Cloud speech capture")
		return c
	case "assemblyai":
		c, err := capture.NewAssemblyAICapture(capture.NewAssemblyAIConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("AssemblyAI capture initialization failed", zap.Error(err))
		}
		logger.Info("Using AssemblyAI speech capture")
		return c
	default:
		logger.Warn("Using mock speech capture, set CAPTURE_PROVIDER to change")
		return capture.NewMockCapture([]string{
			"the fryer",
			"the fryer is not",
			"the fryer is not heating up",
		}, 400*time.Millisecond, logger)
	}
}

func newResponseSource(ctx context.Context, logger *zap.Logger) repositories.ResponseSource {
	if os.Getenv("GEMINI_API_KEY") == "" {
		logger.Warn("GEMINI_API_KEY not set, using mock response source")
		return llm.NewMockSource()
	}
	source, err := llm.NewGeminiSource(ctx, llm.NewGeminiConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Gemini initialization failed", zap.Error(err))
	}
	return source
}

func newSynthesizers(logger *zap.Logger) (repositories.SynthesisProvider, repositories.SynthesisProvider) {
	if os.Getenv("ELEVEN_LABS_API_KEY") == "" {
		logger.Warn("ELEVEN_LABS_API_KEY not set, using mock synthesizer")
		mock := tts.NewMockSynthesizer(logger)
		return mock, mock
	}

	primaryConfig := tts.NewElevenLabsConfigFromEnv()
	primary, err := tts.NewElevenLabsSynthesizer(primaryConfig, logger)
	if err != nil {
		logger.Fatal("ElevenLabs initialization failed", zap.Error(err))
	}
	fallback, err := tts.NewElevenLabsSynthesizer(tts.NewFallbackConfig(primaryConfig), logger)
	if err != nil {
		logger.Fatal("ElevenLabs fallback initialization failed", zap.Error(err))
	}
	return primary, fallback
}
