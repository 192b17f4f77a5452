package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/rfpopositioning/internal/api"
	"github.com/Lllllllleong/rfpopositioning/internal/gcp"
	"github.com/Lllllllleong/rfpopositioning/internal/models"
	"github.com/Lllllllleong/rfpopositioning/internal/services"
)

var (
	router  http.Handler
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("PDFPositioning", handlePDFPositioning)
}

// main serves the function locally; in Cloud Functions the framework owns the process.
func main() {
	port := gcp.GetEnv("PORT", "8080")
	slog.Info("Starting local functions framework.", "port", port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("Functions framework stopped", "error", err)
		os.Exit(1)
	}
}

func handlePDFPositioning(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var svc *services.PositioningFunction
		svc, initErr = services.NewPositioning(context.Background())
		if initErr == nil {
			router = api.NewRouter(svc)
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: api.CodeInternal, Message: "service failed to initialize"})
		return
	}
	router.ServeHTTP(w, r)
}
