// Command api serves the admin IAM HTTP API: password and GitHub login,
// refresh rotation, and the role, permission and user management routes.
//
//	@title						Admin IAM API
//	@version					0.4.0
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/arklim/admin-iam/gen/docs/swagger"
	"github.com/arklim/admin-iam/internal/infra/app"
	"github.com/arklim/admin-iam/internal/infra/config"
)

const (
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// .env.local overrides .env; both are optional and never override the
	// real environment.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fail(exitConfig, "load config", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		code := exitRuntime
		if errors.Is(err, config.ErrInvalidConfig) {
			code = exitConfig
		}
		fail(code, "start admin-iam", err)
	}

	if err := application.Run(ctx); err != nil {
		fail(exitRuntime, "admin-iam stopped", err)
	}
}

// fail runs before the zap logger exists or after it is flushed, so it
// writes to stderr directly.
func fail(code int, what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(code)
}
