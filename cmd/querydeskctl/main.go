package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/querydesk/querydesk/internal/cli/querydeskctl"
)

const defaultTimeout = 30 * time.Second

func main() {
	os.Exit(querydeskctl.Run(context.Background(), os.Args[1:], optionsFromEnv()))
}

func optionsFromEnv() querydeskctl.Options {
	options := querydeskctl.Options{
		BaseURL: "http://localhost:8080",
		APIKey:  strings.TrimSpace(os.Getenv("QUERYDESK_API_KEY")),
		Timeout: defaultTimeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	if baseURL := strings.TrimSpace(os.Getenv("QUERYDESK_API_URL")); baseURL != "" {
		options.BaseURL = baseURL
	}
	if raw := strings.TrimSpace(os.Getenv("QUERYDESK_CLI_TIMEOUT")); raw != "" {
		if timeout, err := time.ParseDuration(raw); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "invalid QUERYDESK_CLI_TIMEOUT %q, using %s\n", raw, defaultTimeout)
		} else {
			options.Timeout = timeout
		}
	}
	return options
}
