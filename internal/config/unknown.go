package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section, sorted for deterministic
// suggestions when two candidates have the same edit distance.
var knownKeys = map[string][]string{
	"server":      {"base_url", "refresh_timeout", "request_timeout", "user_agent"},
	"credentials": {"backend", "path"},
	"access":      {"elevated_roles"},
	"diagnostics": {"journal_path", "max_events"},
	"logging":     {"log_level"},
}

// knownSections is the sorted list of section names.
var knownSections = func() []string {
	names := make([]string, 0, len(knownKeys))
	for name := range knownKeys {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. An unknown
// section is reported once, not once per key inside it.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		if len(key) == 0 {
			continue
		}

		section := key[0]

		fields, ok := knownKeys[section]
		switch {
		case !ok:
			if !seen[section] {
				seen[section] = true
				errs = append(errs, suggest(fmt.Sprintf("unknown config section %q", section), section, knownSections))
			}
		case len(key) > 1:
			name := strings.Join(key[1:], ".")
			errs = append(errs, suggest(fmt.Sprintf("unknown key %q in [%s]", name, section), key[1], fields))
		}
	}

	return errors.Join(errs...)
}

func suggest(msg, got string, known []string) error {
	if match := closestMatch(got, known); match != "" {
		return fmt.Errorf("%s: did you mean %q?", msg, match)
	}

	return errors.New(msg)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
