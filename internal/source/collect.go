// SPDX-License-Identifier: Apache-2.0

// Package source discovers metadata XML documents on a filesystem.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"

	"github.com/neuroarchive/adnimeta/internal/scan"
)

// DefaultFolders are searched under the base path when no folders are given.
var DefaultFolders = []string{"Metainformation", "ADNI_PET_metadata", "ADNI_MRI_metadata"}

const maxSuggestions = 5

// Collector finds source documents under a base path.
type Collector struct {
	fs         billy.Filesystem
	base       string
	classifier *scan.Classifier
	logger     *zap.Logger
}

// NewCollector creates a Collector over fs. Relative folders resolve
// against base. The classifier buckets files by name for the per-type cap.
func NewCollector(fs billy.Filesystem, base string, classifier *scan.Classifier, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = scan.NewClassifier()
	}
	return &Collector{fs: fs, base: base, classifier: classifier, logger: logger.Named("source")}
}

// Options controls a collection.
type Options struct {
	// Folders to search; empty means DefaultFolders under the base path.
	Folders []string
	// MaxPerType caps the number of files taken per name-classified scan
	// type. Zero means unlimited.
	MaxPerType int
}

// Collect returns the sorted list of sources to process. It fails with
// scan.ErrNoSources when no folder holds any XML document.
func (c *Collector) Collect(opts Options) ([]scan.Source, error) {
	dirs, err := c.folders(opts.Folders)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var paths []string
	for _, dir := range dirs {
		entries, err := c.fs.ReadDir(dir)
		if err != nil {
			c.logger.Warn("cannot read folder", zap.String("folder", dir), zap.Error(err))
			continue
		}
		for _, e := range entries {
			p := filepath.Join(dir, e.Name())
			if e.IsDir() || !isXML(e.Name()) || seen[p] {
				continue
			}
			seen[p] = true
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	counts := make(map[scan.Tag]int)
	sources := make([]scan.Source, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		if opts.MaxPerType > 0 {
			tag := c.classifier.ClassifyName(name)
			if counts[tag] >= opts.MaxPerType {
				continue
			}
			counts[tag]++
		}
		sources = append(sources, scan.Source{Path: p, Name: name})
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("%w under %q", scan.ErrNoSources, c.base)
	}
	c.logger.Info("collected sources",
		zap.Int("folders", len(dirs)),
		zap.Int("found", len(paths)),
		zap.Int("selected", len(sources)))
	return sources, nil
}

func (c *Collector) folders(inputs []string) ([]string, error) {
	if len(inputs) == 0 {
		var dirs []string
		for _, name := range DefaultFolders {
			root := filepath.Join(c.base, name)
			if !c.exists(root) {
				continue
			}
			dirs = append(dirs, c.xmlFolders(root)...)
		}
		c.logger.Info("auto search result", zap.Int("folders", len(dirs)))
		if len(dirs) == 0 {
			return nil, fmt.Errorf("%w: none of %v under %q contain XML files", scan.ErrNoSources, DefaultFolders, c.base)
		}
		return dirs, nil
	}

	var dirs []string
	var invalid []string
	for _, input := range inputs {
		resolved := c.Resolve(input)
		found := c.xmlFolders(resolved)
		if len(found) == 0 {
			invalid = append(invalid, input)
			c.logger.Warn("no XML files found", zap.String("folder", input), zap.String("resolved", resolved))
			continue
		}
		c.logger.Info("valid folder", zap.String("folder", resolved), zap.Int("subfolders", len(found)))
		dirs = append(dirs, found...)
	}

	for _, input := range invalid {
		if s := c.Suggest(filepath.Base(input)); len(s) > 0 {
			c.logger.Info("similar folders", zap.String("folder", input), zap.Strings("suggestions", s))
		}
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: no valid folders among %v", scan.ErrNoSources, inputs)
	}
	return dirs, nil
}

// Resolve maps a folder argument to a path. Absolute paths are used as-is;
// relative ones are joined to the base path, falling back to an ADNI
// subfolder when only that exists.
func (c *Collector) Resolve(input string) string {
	if filepath.IsAbs(input) {
		return input
	}
	resolved := filepath.Join(c.base, input)
	if c.exists(resolved) {
		return resolved
	}
	if sub := filepath.Join(resolved, "ADNI"); c.exists(sub) {
		return sub
	}
	return resolved
}

// Suggest lists folders under the base path and its Metainformation
// folder whose names contain target, case-insensitively.
func (c *Collector) Suggest(target string) []string {
	target = strings.ToLower(target)
	var out []string
	for _, parent := range []string{filepath.Join(c.base, "Metainformation"), c.base} {
		entries, err := c.fs.ReadDir(parent)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.Contains(strings.ToLower(e.Name()), target) {
				continue
			}
			rel, err := filepath.Rel(c.base, filepath.Join(parent, e.Name()))
			if err != nil {
				rel = e.Name()
			}
			out = append(out, rel)
			if len(out) == maxSuggestions {
				return out
			}
		}
	}
	return out
}

// xmlFolders returns every folder under root that directly holds an XML
// file, in walk order.
func (c *Collector) xmlFolders(root string) []string {
	var dirs []string
	seen := make(map[string]bool)
	err := util.Walk(c.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if info.IsDir() || !isXML(info.Name()) {
			return nil
		}
		dir := filepath.Dir(p)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("error during folder exploration", zap.String("root", root), zap.Error(err))
	}
	return dirs
}

func (c *Collector) exists(p string) bool {
	_, err := c.fs.Stat(p)
	return err == nil
}

func isXML(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xml")
}
