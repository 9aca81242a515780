package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/quailyquaily/toolgate/gate"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// gateFromViper assembles a gateway from the loaded configuration. The
// returned cleanup closes the SQLite stores and the audit sink.
func gateFromViper(log *slog.Logger) (*gate.Gateway, func(), error) {
	if log == nil {
		log = slog.Default()
	}

	key, err := resolveSigningKey()
	if err != nil {
		return nil, nil, err
	}

	rules, err := resolveRules()
	if err != nil {
		return nil, nil, err
	}

	cfg := gate.Config{
		SigningKey:   key,
		KeyID:        viper.GetString("gate.key_id"),
		SignatureTTL: viper.GetDuration("gate.signature_ttl"),
		ApprovalTTL:  viper.GetDuration("gate.approval_ttl"),
		Rules:        rules,
	}

	dbPath := strings.TrimSpace(viper.GetString("gate.db_path"))
	if dbPath == "" {
		dbPath = defaultStatePath("gate.db")
	}
	dbPath = expandHomePath(dbPath)
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	stores, err := gate.NewSQLiteStores(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open gate store: %w", err)
	}

	opts := []gate.Option{gate.WithStores(stores.Pending(), stores.Approvals())}

	var sink gate.AuditSink
	auditPath := strings.TrimSpace(viper.GetString("gate.audit.jsonl_path"))
	if auditPath == "" {
		auditPath = defaultStatePath("audit.jsonl")
	}
	auditPath = expandHomePath(auditPath)
	if auditPath != "" {
		s, err := gate.NewJSONLAuditSink(auditPath, viper.GetInt64("gate.audit.rotate_max_bytes"))
		if err != nil {
			log.Warn("audit_sink_error", "error", err.Error())
		} else {
			sink = s
			opts = append(opts, gate.WithAuditSink(sink))
		}
	}

	g, err := gate.New(cfg, opts...)
	if err != nil {
		_ = stores.Close()
		if sink != nil {
			_ = sink.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		_ = stores.Close()
		if sink != nil {
			_ = sink.Close()
		}
	}
	return g, cleanup, nil
}

// resolveSigningKey looks in config, then the environment, and finally
// prompts without echo when attached to a terminal. The key never comes
// from a flag where it would land in shell history.
func resolveSigningKey() (string, error) {
	if key := strings.TrimSpace(viper.GetString("gate.signing_key")); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(os.Getenv("TOOLGATE_SIGNING_KEY")); key != "" {
		return key, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no signing key configured (set gate.signing_key or TOOLGATE_SIGNING_KEY)")
	}

	fmt.Fprint(os.Stderr, "Signing key: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read signing key: %w", err)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", fmt.Errorf("empty signing key")
	}
	return key, nil
}

// resolveRules prefers a standalone rules file over rules embedded in the
// main config.
func resolveRules() ([]gate.PolicyRule, error) {
	if path := strings.TrimSpace(viper.GetString("gate.rules_path")); path != "" {
		data, err := os.ReadFile(expandHomePath(path))
		if err != nil {
			return nil, fmt.Errorf("read rules file: %w", err)
		}
		return gate.LoadRulesYAML(data)
	}

	var rules []gate.PolicyRule
	if err := viper.UnmarshalKey("gate.rules", &rules); err != nil {
		return nil, fmt.Errorf("decode gate.rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("no policy rules configured (set gate.rules or gate.rules_path)")
	}
	if err := gate.ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func defaultStatePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return name
	}
	return filepath.Join(home, ".toolgate", name)
}

func expandHomePath(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return path
	}
	return filepath.Join(home, path[2:])
}
