package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"lbo_workbench/pkg/api/projects"
	"lbo_workbench/pkg/core/config"
	"lbo_workbench/pkg/core/store"
)

func main() {
	// Load environment variables
	godotenv.Load()

	cfg, err := config.Load("config/server.yaml")
	if err != nil {
		fmt.Printf("[WARNING] %v. Using defaults.\n", err)
	}

	// Storage: Postgres when configured, in-memory otherwise so the
	// server still runs for local modelling sessions.
	var repo store.ProjectRepository
	if err := store.InitDB(context.Background(), cfg.DatabaseURL); err != nil {
		fmt.Printf("[WARNING] Database unavailable: %v\n", err)
		fmt.Println("  Falling back to in-memory project storage")
		repo = store.NewMemoryProjectRepo()
	} else {
		repo = store.NewProjectRepo()
		defer store.Close()
	}

	handler := projects.NewHandler(repo, cfg.DefaultCase)
	http.HandleFunc("/api/projects", handler.HandleProjects)
	http.HandleFunc("/api/projects/", handler.HandleProject)

	addr := fmt.Sprintf(":%d", cfg.Port)
	fmt.Printf("API server starting on %s...\n", addr)
	fmt.Println("  - POST   /api/projects")
	fmt.Println("  - GET    /api/projects")
	fmt.Println("  - GET    /api/projects/{id}")
	fmt.Println("  - PATCH  /api/projects/{id}")
	fmt.Println("  - DELETE /api/projects/{id}")
	fmt.Println("  - POST   /api/projects/{id}/analyze?case_id=base_case")
	fmt.Println("  - POST   /api/projects/{id}/analyze-all")
	fmt.Println("  - GET    /api/projects/{id}/report?case_id=base_case")

	if err := http.ListenAndServe(addr, nil); err != nil {
		fmt.Printf("[FATAL] Server failed to start: %v\n", err)
		os.Exit(1)
	}
}
