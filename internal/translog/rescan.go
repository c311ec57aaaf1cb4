package translog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"redactd/internal/logging"
	"redactd/internal/match"
	"redactd/internal/sanitize"
	"redactd/internal/vault"
)

// Rescanner reruns detection over persisted transcripts with the
// current secret set, for secrets registered after a transcript was
// written. It only finds secrets whose characters were not already
// replaced by a placeholder in an earlier pass.
type Rescanner struct {
	san *sanitize.Sanitizer
	log *logging.Logger
}

// NewRescanner snapshots the vault's secrets, merged with any ad-hoc
// extra strings for this pass only, and returns a scanner over them.
func NewRescanner(v vault.Vault, extra ...string) *Rescanner {
	return &Rescanner{
		san: sanitize.New(vault.Merged(v, extra...)),
		log: logging.Default().WithComponent("rescan"),
	}
}

// SetFinder replaces the match finder, for configured thresholds.
func (r *Rescanner) SetFinder(f *match.Finder) { r.san.SetFinder(f) }

// Rescan reprocesses one transcript file in place and returns the
// number of replacements made. Rerunning on an already-redacted file
// reports zero. Lines that fail schema validation are preserved
// unchanged.
func (r *Rescanner) Rescan(path string) (int, error) {
	lines, err := readLines(path)
	if err != nil {
		return 0, err
	}

	replaced := 0
	out := make([][]byte, 0, len(lines))
	for _, line := range lines {
		rewritten, n := r.rescanLine(line)
		replaced += n
		out = append(out, rewritten)
	}

	if replaced == 0 {
		return 0, nil
	}
	if err := rewriteFile(path, out); err != nil {
		return 0, err
	}
	r.log.Info("transcript rescanned", "path", path, "replacements", replaced)
	return replaced, nil
}

// Occurrences counts what Rescan would replace without modifying the
// file.
func (r *Rescanner) Occurrences(path string) (int, error) {
	lines, err := readLines(path)
	if err != nil {
		return 0, err
	}

	found := 0
	for _, line := range lines {
		_, n := r.rescanLine(line)
		found += n
	}
	return found, nil
}

// rescanLine reprocesses one transcript line. It returns the rewritten
// line (or the original when nothing changed) and the replacement count.
func (r *Rescanner) rescanLine(line []byte) ([]byte, int) {
	if err := ValidateRecord(line); err != nil {
		r.log.Debug("skipping invalid transcript line", "error", err)
		return line, 0
	}
	rec, skipped, err := DecodeRecord(line)
	if err != nil {
		r.log.Debug("skipping undecodable transcript line", "error", err)
		return line, 0
	}
	if skipped > 0 {
		r.log.Debug("dropped malformed events during rescan", "count", skipped)
	}

	res := r.san.Sanitize(rec.Events)
	if !res.ContainsSecret() {
		return line, 0
	}

	rec.Events = res.Events
	rec.SanitizedText = res.SanitizedText
	rec.ContainsSecret = true

	encoded, err := EncodeRecord(rec)
	if err != nil {
		r.log.Warn("re-encoding rescanned record failed", "error", err)
		return line, 0
	}
	// EncodeRecord appends the newline; rewriteFile joins raw lines.
	return encoded[:len(encoded)-1], len(res.Locations)
}

// RescanDir rescans every transcript in a directory, returning
// per-file replacement counts for files that changed.
func (r *Rescanner) RescanDir(dir string) (map[string]int, error) {
	return r.walkDir(dir, r.Rescan)
}

// OccurrencesDir counts occurrences across a directory without
// modifying any file.
func (r *Rescanner) OccurrencesDir(dir string) (map[string]int, error) {
	return r.walkDir(dir, r.Occurrences)
}

func (r *Rescanner) walkDir(dir string, fn func(string) (int, error)) (map[string]int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	sort.Strings(paths)

	counts := make(map[string]int)
	for _, path := range paths {
		n, err := fn(path)
		if err != nil {
			r.log.Warn("transcript pass failed", "path", path, "error", err)
			continue
		}
		if n > 0 {
			counts[filepath.Base(path)] = n
		}
	}
	return counts, nil
}

// readLines loads a transcript's raw lines.
func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return lines, nil
}

// rewriteFile atomically replaces a transcript: write to a temp file in
// the same directory, sync, rename.
func rewriteFile(path string, lines [][]byte) error {
	tmp := path + ".new"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create temp transcript: %w", err)
	}

	for _, line := range lines {
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write temp transcript: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp transcript: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp transcript: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace transcript: %w", err)
	}
	return nil
}
