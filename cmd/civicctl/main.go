// civicctl is the operator CLI for the civic requests service.
//
// Usage:
//
//	civicctl sweep [--timeout 60s]
//	civicctl token --subject staff|agent --id ID [--role DISPATCHER]
//	civicctl policy --file policy.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/auth"
	"github.com/spec-kit/civic-requests/internal/config"
	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/observability"
	"github.com/spec-kit/civic-requests/internal/persistence"
	"github.com/spec-kit/civic-requests/internal/policy"
	"github.com/spec-kit/civic-requests/internal/repository"
	"github.com/spec-kit/civic-requests/internal/repository/memory"
	"github.com/spec-kit/civic-requests/internal/service"
)

var errUsage = errors.New("usage: civicctl <sweep|token|policy> [flags]")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	switch args[0] {
	case "sweep":
		return runSweep(ctx, cfg, args[1:], stdout)
	case "token":
		return runToken(cfg, args[1:], stdout)
	case "policy":
		return runPolicy(args[1:], stdout)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func runSweep(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("sweep", pflag.ContinueOnError)
	timeout := flags.Duration("timeout", time.Duration(cfg.SLA.SweepTimeoutSeconds)*time.Second, "sweep deadline")
	if err := flags.Parse(args); err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	var requests repository.RequestRepository = memory.NewRequestStore()
	if pg.Enabled() {
		requests = repository.NewRequestRepository(pg.PoolHandle())
	}
	sla := service.NewSLAService(service.SLADependencies{
		RequestRepo: requests,
		PageSize:    cfg.SLA.PageSize,
		Logger:      logger,
	})
	report, err := sla.RunSweep(ctx, *timeout)
	if err != nil {
		return err
	}
	logger.Info("sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("at_risk", len(report.AtRisk)),
		zap.Int("breached", len(report.Breached)))
	return writeJSON(stdout, report)
}

func runToken(cfg *config.Config, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("token", pflag.ContinueOnError)
	subject := flags.String("subject", "staff", "token subject: staff or agent")
	id := flags.String("id", "", "subject id")
	roleName := flags.String("role", string(domain.StaffRoleDispatcher), "staff role")
	ttl := flags.Int("ttl-minutes", cfg.Auth.AccessTokenTTLMinutes, "token lifetime")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}

	var (
		subjectType domain.SubjectType
		role        *domain.StaffRole
	)
	switch strings.ToLower(*subject) {
	case "staff":
		parsed, err := auth.ParseRole(strings.ToUpper(*roleName))
		if err != nil {
			return err
		}
		subjectType = domain.SubjectTypeStaff
		role = &parsed
	case "agent":
		subjectType = domain.SubjectTypeAgent
	default:
		return fmt.Errorf("unknown subject %q", *subject)
	}

	token, expires, err := auth.NewTokenManager(cfg.Auth.JWTSecret, *ttl).GenerateToken(*id, subjectType, role)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]any{"token": token, "expires_at": expires})
}

func runPolicy(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("policy", pflag.ContinueOnError)
	path := flags.String("file", "", "policy YAML file; empty checks the built-in defaults")
	if err := flags.Parse(args); err != nil {
		return err
	}
	registry := policy.Default()
	if *path != "" {
		loaded, err := policy.LoadFile(*path)
		if err != nil {
			return err
		}
		registry = loaded
	}
	if err := registry.Validate(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(stdout, "policy ok: %d priorities, %d category overrides, %d sensitive locations, %d triage rules\n",
		len(registry.Priorities), len(registry.Categories), len(registry.Sensitive), len(registry.Triage.Rules))
	return err
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
