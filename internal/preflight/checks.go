package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"tipflow/internal/config"
	"tipflow/internal/content/llm"
)

const modelCheckName = "Text model"

// HealthChecker is satisfied by model clients that can probe their endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

var newHealthChecker = func(cfg *config.Config) (HealthChecker, error) {
	return llm.NewOpenAI(llm.Settings{
		APIKey:  cfg.Generator.APIKey,
		BaseURL: cfg.Generator.BaseURL,
		Model:   cfg.Generator.Model,
	})
}

// CheckModel verifies that the model API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt.
func CheckModel(ctx context.Context, cfg *config.Config) Result {
	if cfg == nil || !cfg.Generator.UsesModel() {
		return Result{Name: modelCheckName, Detail: "API key missing"}
	}
	client, err := newHealthChecker(cfg)
	if err != nil {
		return Result{Name: modelCheckName, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: modelCheckName, Detail: summarizeModelError(err)}
	}
	return Result{Name: modelCheckName, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Generator.Model)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeModelError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (model API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (model API unreachable)"
	}
	return err.Error()
}
