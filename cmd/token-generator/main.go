// Package main prints an API bearer token signed with the configured JWT
// secret, for use with a server that has authentication enabled.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/phrazzld/stockmeta/internal/config"
	"github.com/phrazzld/stockmeta/internal/service/auth"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "token-generator: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("token-generator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "stockmeta-client", "subject recorded in the token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return printToken(ctx, cfg.Auth, *subject, stdout)
}

func printToken(ctx context.Context, cfg config.AuthConfig, subject string, out io.Writer) error {
	if !cfg.Enabled() {
		return errors.New("auth.jwt_secret is not set; authentication is disabled")
	}

	svc, err := auth.NewJWTService(cfg)
	if err != nil {
		return err
	}
	token, err := svc.GenerateToken(ctx, subject)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
