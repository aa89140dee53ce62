package main

import (
	"net/http"

	"github.com/joho/godotenv"

	"inkdraft/config"
	"inkdraft/config/database"
	"inkdraft/internal/ai"
	"inkdraft/internal/google"
	"inkdraft/pkg/logger"
	"inkdraft/router"
	"inkdraft/socket"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Sugar.Fatalf("Invalid configuration: %v", err)
	}

	db := database.Connect(cfg.DatabaseURL)
	defer db.Close()

	googleClient := google.NewClient(google.Options{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	aiClient := ai.NewClient(ai.Options{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
	})

	hub := socket.NewHub()
	go hub.Run()

	handler := router.Setup(cfg, db, hub, googleClient, aiClient)

	logger.Sugar.Infof("inkdraft backend listening on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
