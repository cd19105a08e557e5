package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// fixturePattern selects every file the server can answer with.
const fixturePattern = "**/*.{json,txt,md}"

// numberedFileRe matches "mock-itinerary.1.json" style names.
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)$`)

// loadFixtures reads the fixtures under dir into model → answer sequence.
// Numbered files come first in numeric order, the base file last.
func loadFixtures(dir string) (map[string][]string, error) {
	paths, err := doublestar.FilepathGlob(filepath.Join(dir, fixturePattern))
	if err != nil {
		return nil, fmt.Errorf("glob fixtures: %w", err)
	}

	base := make(map[string]string)
	numbered := make(map[string]map[int]string)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		ext := filepath.Ext(path)
		if ext == ".json" && !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON in %s", path)
		}

		name := strings.TrimSuffix(filepath.Base(path), ext)
		content := strings.TrimRight(string(data), "\n")

		if m := numberedFileRe.FindStringSubmatch(name); m != nil {
			idx, _ := strconv.Atoi(m[2])
			if numbered[m[1]] == nil {
				numbered[m[1]] = make(map[int]string)
			}
			numbered[m[1]][idx] = content
			continue
		}
		if _, dup := base[name]; dup {
			return nil, fmt.Errorf("duplicate fixture for model %q (%s)", name, path)
		}
		base[name] = content
	}

	fixtures := make(map[string][]string)
	for model, byIndex := range numbered {
		indices := make([]int, 0, len(byIndex))
		for i := range byIndex {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			fixtures[model] = append(fixtures[model], byIndex[i])
		}
	}
	for model, content := range base {
		fixtures[model] = append(fixtures[model], content)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
