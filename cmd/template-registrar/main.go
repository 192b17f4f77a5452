package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/rfpopositioning/internal/services"
)

var (
	registrarInstance *services.TemplateRegistrarFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("RegisterTemplate", registerTemplate)
}

// main is required by the Go Functions Framework.
func main() {}

// registerTemplate handles storage object finalize events from the template bucket.
func registerTemplate(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		registrarInstance, initErr = services.NewTemplateRegistrar(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "eventId", e.ID(), "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return registrarInstance.Process(ctx, gcsEvent)
}
