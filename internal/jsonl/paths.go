package jsonl

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrOutputCollision is returned when two inputs would write the same file.
var ErrOutputCollision = errors.New("inputs map to the same output file")

// Paths names the files produced for one input file.
type Paths struct {
	Input      string
	Output     string
	Quarantine string
	Summary    string
}

// PathsFor derives the output file names for input. The chunk and quarantine
// files keep the input's base name; the summary is {stem}_summary.json.
func PathsFor(input, outputDir, quarantineDir, summaryDir string) Paths {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return Paths{
		Input:      input,
		Output:     filepath.Join(outputDir, base),
		Quarantine: filepath.Join(quarantineDir, base),
		Summary:    filepath.Join(summaryDir, stem+"_summary.json"),
	}
}

// PlanPaths derives the paths of every input and fails when two inputs would
// share a chunk, quarantine or summary file, as a/x.jsonl and b/x.jsonl do.
func PlanPaths(inputs []string, outputDir, quarantineDir, summaryDir string) ([]Paths, error) {
	owners := make(map[string]string)
	plans := make([]Paths, 0, len(inputs))
	for _, input := range inputs {
		p := PathsFor(input, outputDir, quarantineDir, summaryDir)
		for _, out := range []string{p.Output, p.Quarantine, p.Summary} {
			key := filepath.Clean(out)
			if prev, ok := owners[key]; ok {
				return nil, fmt.Errorf("%w: %s and %s both write %s", ErrOutputCollision, prev, input, out)
			}
			owners[key] = input
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// Glob expands doublestar patterns into a sorted, de-duplicated file list.
// A pattern without glob metacharacters is returned as-is so a missing file
// surfaces as an open error later.
func Glob(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[{") {
			if _, ok := seen[pattern]; !ok {
				seen[pattern] = struct{}{}
				files = append(files, pattern)
			}
			continue
		}

		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("invalid input pattern %q", pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	slices.Sort(files)
	return files, nil
}
