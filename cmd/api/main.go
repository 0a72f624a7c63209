package main

import (
	"log"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/keymeter/keymeter/internal/config"
	"github.com/keymeter/keymeter/pkg/gateway"
)

func main() {
	// Load environment files explicitly
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	cfg, err := config.LoadFromFile("config.yaml")
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	gw := gateway.New(cfg)

	log.Println("Starting KeyMeter server...")
	if err := gw.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
