package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/router-for-me/strepsil/internal/app"
	"github.com/router-for-me/strepsil/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:], os.Stdout); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run dispatches to the serve, migrate or token command. serve is the default.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("strepsil "+command, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", config.DefaultPort, "server port written into a generated config")
	subject := fs.String("subject", "dashboard", "token subject (token command)")
	ttl := fs.Duration("ttl", 0, "token lifetime, 0 uses the configured jwt expiry (token command)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	switch command {
	case "serve":
		if errValidate := validatePort(*port); errValidate != nil {
			return errValidate
		}
		return app.RunServer(ctx, appCfg, *port)
	case "migrate":
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	case "token":
		token, errToken := app.IssueAPIToken(appCfg, *subject, *ttl)
		if errToken != nil {
			return errToken
		}
		_, errWrite := fmt.Fprintln(stdout, token)
		return errWrite
	default:
		return fmt.Errorf("unknown command %q (want serve, migrate or token)", command)
	}
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
