package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/andesco/fluxgate/handlers"
	"github.com/andesco/fluxgate/pkg/config"
	"github.com/andesco/fluxgate/pkg/fetcher"
	"github.com/andesco/fluxgate/pkg/ruleset"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	parser := argparse.NewParser("fluxgate", "Streaming extraction proxy")
	port := parser.String("p", "port", &argparse.Options{
		Required: false,
		Default:  cfg.Port,
		Help:     "Port the webserver will listen on",
	})
	prefork := parser.Flag("r", "prefork", &argparse.Options{
		Required: false,
		Help:     "This will spawn multiple processes listening",
	})
	rulesetPath := parser.String("s", "ruleset", &argparse.Options{
		Required: false,
		Default:  cfg.RulesetPath,
		Help:     "File or directory of YAML rulesets, several separated by ;",
	})
	logLevel := parser.Selector("l", "log-level", []string{"debug", "info", "warn", "error"}, &argparse.Options{
		Required: false,
		Default:  cfg.LogLevel,
		Help:     "Minimum log level",
	})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(2)
	}

	cfg.Port = *port
	cfg.Prefork = cfg.Prefork || *prefork
	cfg.RulesetPath = *rulesetPath
	cfg.LogLevel = *logLevel

	logger, err := newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.Logger = logger

	rules, err := ruleset.Load(cfg.RulesetPath)
	if err != nil {
		log.Fatal().Err(err).Str("ruleset", cfg.RulesetPath).Msg("loading ruleset")
	}
	cfg.AllowedDomains = allowedDomains(cfg, rules)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	client := fetcher.New(&cfg, rules, nil)
	app := handlers.NewApp(&cfg, client)

	log.Info().
		Str("port", cfg.Port).
		Bool("prefork", cfg.Prefork).
		Int("rules", rules.Count()).
		Int("allowed_domains", len(cfg.AllowedDomains)).
		Msg("fluxgate listening")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// newLogger writes human-readable lines to a terminal and JSON otherwise.
func newLogger(level string, out *os.File) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	var logger zerolog.Logger
	if term.IsTerminal(int(out.Fd())) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(out)
	}
	return logger.Level(lvl).With().Timestamp().Logger(), nil
}

// allowedDomains merges the configured allow-list with the ruleset's
// domains when ALLOWED_DOMAINS_RULESET is on.
func allowedDomains(cfg config.Config, rules ruleset.RuleSet) []string {
	domains := append([]string(nil), cfg.AllowedDomains...)
	if !cfg.AllowedDomainsRuleset {
		return domains
	}
	for _, d := range rules.Domains() {
		domains = append(domains, strings.ToLower(d))
	}
	return domains
}
