package lint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/kris-hansen/stepwise/utils/fileutil"
)

// IgnoreFile holds gitignore style patterns, read from the root of every
// directory passed to Collect.
const IgnoreFile = ".stepwiseignore"

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
}

// Collect expands paths into the workflow files to check. Files named
// explicitly are always included; directories are walked for .yaml and .yml
// files, skipping hidden entries and anything matched by the ignore file or
// the extra patterns.
func Collect(paths []string, patterns []string) ([]string, error) {
	var extra *gitignore.GitIgnore
	if len(patterns) > 0 {
		extra = gitignore.CompileIgnoreLines(patterns...)
	}

	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	expanded, err := fileutil.ExpandPaths(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to expand paths: %w", err)
	}
	for _, path := range expanded {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %q: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}

		var rules *gitignore.GitIgnore
		if gi, err := gitignore.CompileIgnoreFile(filepath.Join(path, IgnoreFile)); err == nil {
			rules = gi
		}
		found, err := walkDir(path, path, rules, extra)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}

func walkDir(root, dir string, rules, extra *gitignore.GitIgnore) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		if entry.IsDir() {
			rel += "/"
		}
		if ignored(rel, rules, extra) {
			continue
		}

		if entry.IsDir() {
			if skipDirs[name] {
				continue
			}
			nested, err := walkDir(root, path, rules, extra)
			if err != nil {
				return nil, err
			}
			files = append(files, nested...)
			continue
		}
		if fileutil.IsWorkflowFile(name) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

func ignored(rel string, rules ...*gitignore.GitIgnore) bool {
	for _, gi := range rules {
		if gi != nil && gi.MatchesPath(rel) {
			return true
		}
	}
	return false
}
