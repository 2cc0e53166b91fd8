// Package main is the entry point for the sgsend command, which builds a
// mail.send request from a message description or a raw email and sends it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/shineum/sgmail/internal/config"
	"github.com/shineum/sgmail/internal/email"
	"github.com/shineum/sgmail/internal/fetch"
	"github.com/shineum/sgmail/internal/parser"
	"github.com/shineum/sgmail/internal/provider"
	"github.com/shineum/sgmail/internal/provider/ses"
	"github.com/shineum/sgmail/internal/provider/stdout"
	"github.com/shineum/sgmail/internal/provider/webapi"
	"github.com/shineum/sgmail/internal/sender"
)

const maxConcurrentFetches = 4

// remoteFile is a -attach flag value of the form name=url.
type remoteFile struct {
	name string
	url  string
}

func main() {
	var attachments []remoteFile

	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envFile := flag.String("env-file", ".env", "path to a .env file, loaded if it exists")
	messagePath := flag.String("message", "", "path to a JSON or YAML message description")
	emlPath := flag.String("eml", "", "path to a raw RFC 5322 message to import")
	flag.Func("attach", "remote attachment as name=url (repeatable)", func(v string) error {
		name, ref, ok := strings.Cut(v, "=")
		if !ok || name == "" || ref == "" {
			return errors.New("want name=url")
		}
		attachments = append(attachments, remoteFile{name: name, url: ref})
		return nil
	})
	flag.Parse()

	if *envFile != "" && fileExists(*envFile) {
		if err := godotenv.Load(*envFile); err != nil {
			slog.Error("failed to load env file", "path", *envFile, "error", err)
			os.Exit(1)
		}
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	msg, err := loadMessage(*messagePath, *emlPath)
	if err != nil {
		slog.Error("failed to load message", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	fetcher := fetch.New(fetch.Config{
		Timeout:  cfg.Fetch.Timeout,
		CacheTTL: cfg.Fetch.CacheTTL,
	})
	if err := attachRemote(ctx, msg, fetcher, attachments); err != nil {
		slog.Error("failed to attach remote file", "error", err)
		os.Exit(1)
	}

	s := sender.New(sender.Config{
		Provider:    selectProvider(ctx, cfg),
		Credentials: cfg.Credentials(),
		Endpoint:    cfg.API.URL,
	})

	resp, err := s.Send(ctx, sender.FromMessage(msg))
	if err != nil {
		logSendError(slog.Default(), err)
		os.Exit(1)
	}

	fmt.Println(string(resp.Body))
}

// logSendError reports a failed send. Rejections from mail.send also carry
// the status and the error list from the reply.
func logSendError(logger *slog.Logger, err error) {
	var apiErr *webapi.APIError
	if errors.As(err, &apiErr) {
		logger.Error("mail.send rejected the message",
			"status", apiErr.StatusCode,
			"errors", apiErr.Errors,
		)
		return
	}
	logger.Error("failed to send message", "error", err)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// loadMessage builds the message from a description file or a raw email.
// Exactly one of the two paths must be set.
func loadMessage(descPath, emlPath string) (*email.Message, error) {
	switch {
	case descPath != "" && emlPath != "":
		return nil, errors.New("-message and -eml are mutually exclusive")
	case emlPath != "":
		raw, err := os.ReadFile(emlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", emlPath, err)
		}
		parsed, err := parser.Parse(raw)
		if err != nil {
			return nil, err
		}
		return parsed.Message(), nil
	case descPath != "":
		data, err := os.ReadFile(descPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", descPath, err)
		}
		var d email.Description
		if strings.EqualFold(filepath.Ext(descPath), ".json") {
			err = json.Unmarshal(data, &d)
		} else {
			err = yaml.Unmarshal(data, &d)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", descPath, err)
		}
		return email.New(&d), nil
	default:
		return nil, errors.New("one of -message or -eml is required")
	}
}

// attachRemote downloads every remote file concurrently and attaches them in
// flag order once all downloads have succeeded.
func attachRemote(ctx context.Context, msg *email.Message, f email.Fetcher, files []remoteFile) error {
	contents := make([][]byte, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, file := range files {
		g.Go(func() error {
			b, err := f.Fetch(ctx, file.url)
			if err != nil {
				return fmt.Errorf("failed to fetch attachment %q: %w", file.name, err)
			}
			contents[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, file := range files {
		msg.AttachBytes(file.name, contents[i])
	}
	return nil
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level. Logs go to stderr so the API reply on stdout stays clean.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectProvider chooses the delivery backend based on configuration.
// If PROVIDER is set, it takes precedence. Otherwise the web API is used when
// credentials are configured, then SES, then stdout.
func selectProvider(ctx context.Context, cfg *config.Config) provider.Provider {
	switch cfg.Provider {
	case "webapi":
		if !cfg.APIConfigured() {
			slog.Error("webapi provider selected but SENDGRID_API_USER and SENDGRID_API_KEY are required")
			os.Exit(1)
		}
		slog.Info("using mail.send web API provider", "url", cfg.API.URL)
		return webapi.New(webapi.Config{Timeout: cfg.API.Timeout})

	case "ses":
		if !cfg.SESConfigured() {
			slog.Error("SES provider selected but SES_REGION and SES_SENDER are required")
			os.Exit(1)
		}
		return newSES(ctx, cfg)

	case "stdout":
		slog.Info("using stdout provider")
		return stdout.New()

	case "":
		if cfg.APIConfigured() {
			slog.Info("using mail.send web API provider (auto-detected)", "url", cfg.API.URL)
			return webapi.New(webapi.Config{Timeout: cfg.API.Timeout})
		}
		if cfg.SESConfigured() {
			return newSES(ctx, cfg)
		}
		slog.Info("no provider configured, using stdout provider")
		return stdout.New()

	default:
		slog.Error("unknown provider", "provider", cfg.Provider)
		os.Exit(1)
		return nil
	}
}

func newSES(ctx context.Context, cfg *config.Config) provider.Provider {
	slog.Info("using AWS SES provider",
		"region", cfg.SES.Region,
		"sender", cfg.SES.Sender,
	)
	p, err := ses.New(ctx, ses.SESProviderConfig{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
	})
	if err != nil {
		slog.Error("failed to create SES provider", "error", err)
		os.Exit(1)
	}
	return p
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
