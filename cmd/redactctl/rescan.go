package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"redactd/internal/config"
	"redactd/internal/translog"
	"redactd/internal/vault"
)

type rescanFlags struct {
	configPath string
	dir        string
	extras     []string
	noVault    bool
}

func (f *rescanFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "Path to config file")
	flags.StringVar(&f.dir, "dir", "", "Rescan every transcript in this directory")
	flags.StringSliceVar(&f.extras, "secret", nil, "Extra search string for this pass only (may be repeated)")
	flags.BoolVar(&f.noVault, "no-vault", false, "Search only the --secret strings, skip the vault")
}

// rescanner builds the scanner for one pass: the vault snapshot plus
// any ad-hoc strings, or ad-hoc strings alone with --no-vault.
func (f *rescanFlags) rescanner() (*translog.Rescanner, func(), error) {
	if f.noVault {
		if len(f.extras) == 0 {
			return nil, nil, exitError(3, "--no-vault requires at least one --secret")
		}
		return translog.NewRescanner(vault.Static(nil), f.extras...), func() {}, nil
	}

	store, err := openVault(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	return translog.NewRescanner(store, f.extras...), func() { store.Close() }, nil
}

func (f *rescanFlags) defaultDir() (string, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return "", exitError(3, "load config: %v", err)
	}
	return cfg.Transcripts.Dir, nil
}

func newRescanCmd() *cobra.Command {
	f := &rescanFlags{}

	cmd := &cobra.Command{
		Use:   "rescan [transcript-file]",
		Short: "Re-redact stored transcripts with the current secret set",
		Long: `Rescan reprocesses sanitized transcripts against the current secret
set, catching secrets registered after the transcript was written.
Files are rewritten in place atomically; a second run reports zero
replacements. Without a file argument the configured transcript
directory is rescanned.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rescanner, closeVault, err := f.rescanner()
			if err != nil {
				return err
			}
			defer closeVault()

			if len(args) == 1 {
				n, err := rescanner.Rescan(args[0])
				if err != nil {
					return exitError(4, "rescan: %v", err)
				}
				fmt.Printf("%s: %d replacement(s)\n", args[0], n)
				return nil
			}

			dir := f.dir
			if dir == "" {
				if dir, err = f.defaultDir(); err != nil {
					return err
				}
			}
			counts, err := rescanner.RescanDir(dir)
			if err != nil {
				return exitError(4, "rescan directory: %v", err)
			}
			if len(counts) == 0 {
				fmt.Println("No replacements.")
				return nil
			}
			total := 0
			for name, n := range counts {
				fmt.Printf("%s: %d replacement(s)\n", name, n)
				total += n
			}
			fmt.Printf("Total: %d replacement(s) in %d file(s)\n", total, len(counts))
			return nil
		},
	}

	f.bind(cmd)
	return cmd
}

func newOccurrencesCmd() *cobra.Command {
	f := &rescanFlags{}

	cmd := &cobra.Command{
		Use:   "occurrences [transcript-file]",
		Short: "Count what a rescan would replace, without modifying files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rescanner, closeVault, err := f.rescanner()
			if err != nil {
				return err
			}
			defer closeVault()

			if len(args) == 1 {
				n, err := rescanner.Occurrences(args[0])
				if err != nil {
					return exitError(4, "scan: %v", err)
				}
				fmt.Printf("%s: %d occurrence(s)\n", args[0], n)
				return nil
			}

			dir := f.dir
			if dir == "" {
				if dir, err = f.defaultDir(); err != nil {
					return err
				}
			}
			counts, err := rescanner.OccurrencesDir(dir)
			if err != nil {
				return exitError(4, "scan directory: %v", err)
			}
			if len(counts) == 0 {
				fmt.Println("No occurrences.")
				return nil
			}
			for name, n := range counts {
				fmt.Printf("%s: %d occurrence(s)\n", name, n)
			}
			return nil
		},
	}

	f.bind(cmd)
	return cmd
}
