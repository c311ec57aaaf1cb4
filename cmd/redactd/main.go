// redactd - Keystroke redaction daemon
//
// redactd reads captured input events from stdin as line-delimited
// JSON, reconstructs the typed text on a fixed cycle, replaces any
// registered secrets, and appends the sanitized result to a transcript
// file. Raw events never touch disk.
//
//	redactd run [-config path]    Run the daemon
//	redactd init                  Write a default config file
//	redactd version               Print the version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"redactd/internal/capture"
	"redactd/internal/config"
	"redactd/internal/engine"
	"redactd/internal/logging"
	"redactd/internal/match"
	"redactd/internal/sanitize"
	"redactd/internal/translog"
	"redactd/internal/vault"
)

var version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "init":
		cmdInit()
	case "version":
		fmt.Println("redactd " + version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`redactd - Keystroke Redaction Daemon

USAGE:
    redactd <command> [options]

COMMANDS:
    run         Run the daemon, reading events from stdin
    init        Write a default config file
    version     Print the version
    help        Show this help message

The daemon reads one JSON input event per line from stdin. On each
flush cycle it reconstructs the typed text, replaces registered
secrets with [REDACTED], and appends the sanitized record to the
transcript directory. Use redactctl to manage secrets and to rescan
existing transcripts.

The vault passphrase is read from the environment variable named by
vault.passphrase_env (default REDACTD_PASSPHRASE).`)
}

func cmdInit() {
	path := config.ConfigPath()
	_, created, err := config.LoadOrCreate(path)
	if err != nil {
		fatal("init config: %v", err)
	}
	if created {
		fmt.Printf("Wrote default config to %s\n", path)
	} else {
		fmt.Printf("Config already exists at %s\n", path)
	}
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fatal("load config: %v", err)
	}
	defer loader.Close()

	if err := cfg.EnsureDirectories(); err != nil {
		fatal("prepare directories: %v", err)
	}

	log, err := initLogging(cfg)
	if err != nil {
		fatal("init logging: %v", err)
	}
	defer log.Close()

	passphrase := os.Getenv(cfg.Vault.PassphraseEnv)
	if passphrase == "" {
		fatal("vault passphrase not set: export %s", cfg.Vault.PassphraseEnv)
	}

	store, err := vault.Open(cfg.Vault.Path, passphrase)
	if err != nil {
		fatal("open vault: %v", err)
	}
	defer store.Close()

	san := sanitize.New(store)
	san.SetFinder(finderFromConfig(cfg))

	writer, err := translog.OpenWriter(transcriptPath(cfg.Transcripts.Dir))
	if err != nil {
		fatal("open transcript: %v", err)
	}
	defer writer.Close()

	buf := capture.NewBuffer(cfg.Capture.BufferSize)
	eng := engine.New(engine.Config{
		Buffer:        buf,
		Vault:         store,
		Sanitizer:     san,
		Sink:          writer,
		FlushInterval: cfg.Capture.FlushInterval(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	loader.OnChange(func(newCfg *config.Config) {
		san.SetFinder(finderFromConfig(newCfg))
		log.Info("matching thresholds reloaded")
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config hot reload unavailable", "error", err)
	}
	go func() {
		for err := range loader.Errors() {
			log.Warn("config reload error", "error", err)
		}
	}()

	if cfg.Transcripts.AutoRescan {
		own := writer.Path()
		watcher := translog.NewWatcher(cfg.Transcripts.Dir, func(path string) {
			if path == own {
				return
			}
			rescanner := translog.NewRescanner(store)
			if _, err := rescanner.Rescan(path); err != nil {
				log.Warn("auto rescan failed", "path", path, "error", err)
			}
		})
		go func() {
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Warn("transcript watch stopped", "error", err)
			}
		}()
	}

	recorder := capture.NewStreamRecorder(os.Stdin)
	recorderDone := make(chan error, 1)
	go func() {
		recorderDone <- recorder.Record(ctx, buf)
	}()

	log.Info("redactd started",
		"version", version,
		"transcript", writer.Path(),
		"flush_interval", cfg.Capture.FlushInterval())

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	select {
	case err := <-recorderDone:
		// Input closed; flush what remains and exit.
		if err != nil && ctx.Err() == nil {
			log.Error("input stream failed", "error", err)
		}
		cancel()
		<-engineDone
	case <-engineDone:
	}

	log.Info("redactd stopped", "cycles", eng.Cycles(), "dropped_events", buf.Dropped())
}

func initLogging(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(&logging.Config{
		Level:      level,
		Format:     logging.ParseFormat(cfg.Logging.Format),
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Component:  "redactd",
	})
	if err != nil {
		return nil, err
	}
	logging.SetDefault(log)
	return log, nil
}

func finderFromConfig(cfg *config.Config) *match.Finder {
	f := match.NewFinder()
	f.MinSimilarity = cfg.Matching.MinSimilarity
	f.FuzzyMinLength = cfg.Matching.FuzzyMinLength
	f.ChunkSize = cfg.Matching.ChunkSize
	return f
}

// transcriptPath names the transcript for this daemon run.
func transcriptPath(dir string) string {
	stamp := time.Now().UTC().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("redactd-%s.jsonl", stamp))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
