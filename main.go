package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/example/roomchat/modules/activity"
	"github.com/example/roomchat/modules/api"
	"github.com/example/roomchat/modules/auth"
	"github.com/example/roomchat/modules/chat"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Room Chat - Fiber WebSocket + mono EventBus ===")

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	logger := app.Logger()

	authModule := auth.NewModule(logger.WithModule("auth"))
	chatModule := chat.NewModule(logger.WithModule("chat"))
	activityModule := activity.NewModule(logger.WithModule("activity"))
	apiModule := api.NewModule(logger.WithModule("api"))

	// WebSocket connections subscribe to rooms with in-process handles,
	// so the api module talks to the chat engine directly for them.
	apiModule.SetChatModule(chatModule)

	// Order: independent modules first, then modules with dependencies
	// - auth: Credential verifier (ServiceProviderModule)
	// - chat: Room engine (ServiceProviderModule + EventEmitterModule)
	// - activity: Activity feed (EventConsumerModule)
	// - api: Driving adapter (Fiber HTTP/WebSocket server)
	app.Register(authModule)
	app.Register(chatModule)
	app.Register(activityModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	store := os.Getenv("STORE_DRIVER")
	if store == "" {
		store = "sqlite"
	}
	limiter := "in-process token bucket"
	if os.Getenv("REDIS_ADDR") != "" {
		limiter = "redis sliding window (" + os.Getenv("REDIS_ADDR") + ")"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Printf("  - Room store: %s", store)
	log.Printf("  - Send rate limiter: %s", limiter)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health                        - Health check")
	log.Println("  POST   /api/v1/auth/register          - Create an account")
	log.Println("  POST   /api/v1/auth/login             - Get an access token")
	log.Println("  GET    /api/v1/rooms                  - List my rooms")
	log.Println("  POST   /api/v1/rooms                  - Create a room")
	log.Println("  GET    /api/v1/rooms/:id              - Room details")
	log.Println("  POST   /api/v1/rooms/:id/join         - Join a room")
	log.Println("  POST   /api/v1/rooms/:id/leave        - Leave a room")
	log.Println("  GET    /api/v1/rooms/:id/messages     - Message history (?limit=&before=)")
	log.Println("  POST   /api/v1/rooms/:id/messages     - Send a message")
	log.Println("  GET    /api/v1/rooms/:id/online       - Online participants")
	log.Println("  GET    /api/v1/activity               - Activity feed")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", port)
	log.Printf("  Connect with: ws://localhost:%s/ws?token=<access_token>", port)
	log.Println("  Events: create-room, join-room, leave-room, send-message, get-messages,")
	log.Println("          get-my-rooms, check-room, typing, get-online-users")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
