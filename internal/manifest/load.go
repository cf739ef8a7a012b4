package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// DefaultPattern selects every YAML file below a directory.
const DefaultPattern = "**/*.{yaml,yml}"

// Parse decodes every non-blank document in data and validates it.
func Parse(data []byte, path string) ([]Document, error) {
	var (
		docs []Document
		dec  = yaml.NewDecoder(bytes.NewReader(data))
	)

	for {
		var doc Document
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if doc.blank() {
			continue
		}
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		doc.Path = path
		docs = append(docs, doc)
	}

	return docs, nil
}

// Load reads manifests from the given files and directories. Directories
// are walked and files are selected when their slash-separated path
// relative to the directory matches pattern. Explicit file arguments are
// always read. Documents are returned in path order and project names
// must be unique across all of them.
func Load(paths []string, pattern string) ([]Document, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: bad glob pattern %q", ErrInvalidManifest, pattern)
	}

	files, err := collect(paths, pattern)
	if err != nil {
		return nil, err
	}

	var (
		docs  []Document
		names = map[string]string{}
	)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		parsed, err := Parse(data, file)
		if err != nil {
			return nil, err
		}

		for _, doc := range parsed {
			if prev, ok := names[doc.Project.Name]; ok {
				return nil, fmt.Errorf("%w: project %q defined in both %s and %s", ErrInvalidManifest, doc.Project.Name, prev, file)
			}
			names[doc.Project.Name] = file
		}
		docs = append(docs, parsed...)
	}

	return docs, nil
}

func collect(paths []string, pattern string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		root := p
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != root && d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			match, err := doublestar.Match(pattern, filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			if match {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)

	unique := files[:0]
	for i, f := range files {
		if i > 0 && f == files[i-1] {
			continue
		}
		unique = append(unique, f)
	}
	return unique, nil
}
