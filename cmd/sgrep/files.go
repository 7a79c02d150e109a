package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// hasGlobMeta reports whether pattern contains any doublestar metacharacter,
// so plain file names never pay for a filesystem walk.
func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// expandGlob resolves one positional file argument, glob-expanding it with
// doublestar when it looks like a pattern.
func expandGlob(pattern string) ([]string, error) {
	if !hasGlobMeta(pattern) {
		return []string{pattern}, nil
	}
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		// No match: fall back to the literal pattern so the engine's own
		// AddFiles reports a clear "no such file" rather than silently
		// vanishing it, matching a shell's own glob-miss behavior.
		return []string{pattern}, nil
	}
	return matches, nil
}

// readListFile reads a `-F <listfile>`: one file name or glob
// pattern per line, blank lines and lines starting with '#' ignored.
func readListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		matches, err := expandGlob(line)
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveFiles assembles the final, ordered input file list from
// positional arguments and `-F` listfiles (at most 64 are honored),
// glob-expanding every entry.
func resolveFiles(positional []string, listFiles []string) ([]string, error) {
	if len(listFiles) > 64 {
		listFiles = listFiles[:64]
	}
	var out []string
	for _, lf := range listFiles {
		names, err := readListFile(lf)
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	for _, p := range positional {
		names, err := expandGlob(p)
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}
