// Package catalog discovers migration source files for a DbContext and
// collapses primary/designer pairs into one artifact per migration.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	// MigrationsDir is the conventional migrations folder under a project
	MigrationsDir = "Migrations"

	// SourceExt is the extension of migration source files
	SourceExt = ".cs"

	// SnapshotSuffix marks the cumulative model snapshot, which is never replayed
	SnapshotSuffix = "ModelSnapshot"

	// CompanionSuffix marks the designer file generated alongside a migration
	CompanionSuffix = ".Designer"

	// ContextSuffix is stripped from a context class name to get its folder name
	ContextSuffix = "Context"

	// TimestampLen is the width of a migration timestamp (yyyyMMddHHmmss)
	TimestampLen = 14
)

var fileNameRegex = regexp.MustCompile(`^(\d{14})_(.+?)(\.Designer)?$`)

// Artifact is one migration source file
type Artifact struct {
	Path      string `json:"path"      yaml:"path"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Name      string `json:"name"      yaml:"name"`
	Companion bool   `json:"companion" yaml:"companion"`
}

// Key identifies a migration independent of which of its files was found
type Key struct {
	Timestamp string
	Name      string
}

// Key returns the (timestamp, name) identity of the artifact
func (a Artifact) Key() Key {
	return Key{Timestamp: a.Timestamp, Name: a.Name}
}

// Label is the display form "<timestamp> - <name>", or the bare name when
// the file name carried no timestamp.
func (a Artifact) Label() string {
	if a.Timestamp == "" {
		return a.Name
	}

	return a.Timestamp + " - " + a.Name
}

// ContextShort reduces a qualified context name such as
// "Shop.Data.ShopContext" to its folder name "Shop".
func ContextShort(contextName string) string {
	last := contextName
	if i := strings.LastIndex(contextName, "."); i >= 0 {
		last = contextName[i+1:]
	}

	return strings.TrimSuffix(last, ContextSuffix)
}

// CandidateDirs returns the directories searched for a context, in
// preference order: Migrations/<short> then Migrations. The list is
// de-duplicated by cleaned path.
func CandidateDirs(root, contextName string) []string {
	base := filepath.Join(root, MigrationsDir)
	dirs := []string{filepath.Join(base, ContextShort(contextName)), base}

	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]

	for _, d := range dirs {
		d = filepath.Clean(d)
		if seen[d] {
			continue
		}

		seen[d] = true
		out = append(out, d)
	}

	return out
}

// ParseFileName splits a file stem (no extension) into an artifact. Stems
// that do not follow <14 digits>_<name>[.Designer] get an empty timestamp and
// the whole stem as name.
func ParseFileName(stem string) (timestamp, name string, companion bool) {
	m := fileNameRegex.FindStringSubmatch(stem)
	if m == nil {
		return "", stem, false
	}

	return m[1], m[2], m[3] != ""
}

// Discover lists every candidate migration file for the context without
// de-duplication. Missing directories are skipped.
func Discover(root, contextName string) ([]Artifact, error) {
	var artifacts []Artifact

	for _, dir := range CandidateDirs(root, contextName) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), SourceExt) {
				continue
			}

			stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			if hasSuffixFold(stem, SnapshotSuffix) {
				continue
			}

			ts, name, companion := ParseFileName(stem)
			artifacts = append(artifacts, Artifact{
				Path:      filepath.Join(dir, entry.Name()),
				Timestamp: ts,
				Name:      name,
				Companion: companion,
			})
		}
	}

	return artifacts, nil
}

// Dedupe keeps exactly one artifact per (timestamp, name): the primary file
// when present, otherwise the companion. Groups keep the order in which their
// key was first seen.
func Dedupe(artifacts []Artifact) []Artifact {
	index := make(map[Key]int, len(artifacts))
	out := make([]Artifact, 0, len(artifacts))

	for _, a := range artifacts {
		i, ok := index[a.Key()]
		if !ok {
			index[a.Key()] = len(out)
			out = append(out, a)

			continue
		}

		if out[i].Companion && !a.Companion {
			out[i] = a
		}
	}

	return out
}

// SortByTimestamp orders artifacts oldest first. Timestamps are fixed width
// so ordinal comparison is chronological; empty timestamps sort first and
// ties keep their input order.
func SortByTimestamp(artifacts []Artifact) {
	sort.SliceStable(artifacts, func(i, j int) bool {
		return artifacts[i].Timestamp < artifacts[j].Timestamp
	})
}

// List is Discover, Dedupe and SortByTimestamp in one call. Both the
// migration listing and schema reconstruction go through here.
func List(root, contextName string) ([]Artifact, error) {
	artifacts, err := Discover(root, contextName)
	if err != nil {
		return nil, err
	}

	artifacts = Dedupe(artifacts)
	SortByTimestamp(artifacts)

	return artifacts, nil
}

// Labels returns the display label of each artifact
func Labels(artifacts []Artifact) []string {
	labels := make([]string, len(artifacts))
	for i, a := range artifacts {
		labels[i] = a.Label()
	}

	return labels
}

// HasName reports whether any artifact uses name as its logical name,
// ignoring case.
func HasName(artifacts []Artifact, name string) bool {
	for _, a := range artifacts {
		if strings.EqualFold(a.Name, name) {
			return true
		}
	}

	return false
}

// Find returns the artifact whose timestamp or logical name matches ref
func Find(artifacts []Artifact, ref string) (Artifact, bool) {
	for _, a := range artifacts {
		if a.Timestamp == ref || strings.EqualFold(a.Name, ref) {
			return a, true
		}
	}

	return Artifact{}, false
}

// IsTimestamp reports whether s is a 14-digit migration timestamp
func IsTimestamp(s string) bool {
	if len(s) != TimestampLen {
		return false
	}

	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
