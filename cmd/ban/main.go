package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adresse-nationale/ban/internal/api"
	"github.com/adresse-nationale/ban/internal/config"
	"github.com/adresse-nationale/ban/internal/db"
	"github.com/adresse-nationale/ban/internal/domain"
	"github.com/adresse-nationale/ban/internal/export"
	"github.com/adresse-nationale/ban/internal/ingestion"
	"github.com/adresse-nationale/ban/internal/repository"
)

var (
	configPath     string
	migrationsPath string
)

func main() {
	root := &cobra.Command{
		Use:   "ban",
		Short: "National address registry API",
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding config.yaml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE:  runServe,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().StringVar(&migrationsPath, "path", "./migrations", "directory holding migration files")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Bulk import municipalities from a CSV or XLSX file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	root.AddCommand(serveCmd, migrateCmd, importCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	repos := repository.NewAll(conn)
	importHandler := ingestion.NewHTTPHandler(
		ingestion.NewService(repos[domain.Municipality.Name]),
	)
	exportHandler := export.NewHTTPHandler(export.NewService(repos))
	router := api.NewRouter(repos, cfg.HTTP.AllowedOrigins, importHandler, exportHandler)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting API server on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server exited")
	return nil
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := db.RunMigrations(cfg.Database, migrationsPath); err != nil {
		return err
	}
	log.Println("Migrations applied")
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	conn, err := db.NewConnection(cmd.Context(), cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	repos := repository.NewAll(conn)
	service := ingestion.NewService(repos[domain.Municipality.Name])

	summary, err := service.Ingest(cmd.Context(), ingestion.Request{
		FileName: args[0],
		Data:     file,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
