// Package bids indexes the files of a BIDS dataset and answers entity queries
// against them.
package bids

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

// Directories never indexed when found directly under the dataset root
var ignoredRootDirs = map[string]bool{
	"code":        true,
	"derivatives": true,
	"models":      true,
	"sourcedata":  true,
	"stimuli":     true,
}

var datatypes = map[string]bool{
	"anat": true, "beh": true, "dwi": true, "eeg": true, "fmap": true,
	"func": true, "ieeg": true, "meg": true, "micr": true, "motion": true,
	"nirs": true, "perf": true, "pet": true,
}

// File is one indexed dataset file
type File struct {
	Path      string
	Entities  map[string]string
	Suffix    string
	Extension string
	Datatype  string
}

// ParseFilename splits a BIDS base name into its entities, suffix and extension
func ParseFilename(name string) (entities map[string]string, suffix string, extension string) {
	stem := name
	if dot := strings.Index(name, "."); dot >= 0 {
		stem, extension = name[:dot], name[dot:]
	}

	entities = map[string]string{}
	for _, part := range strings.Split(stem, "_") {
		key, value, ok := strings.Cut(part, "-")
		if ok && key != "" {
			entities[key] = value
			continue
		}
		suffix = part
	}
	return entities, suffix, extension
}

// Layout is an index over a BIDS dataset
type Layout struct {
	root  string
	files []File
}

// NewLayout walks root and indexes every subject file. Hidden entries and the
// code, derivatives, models, sourcedata and stimuli directories are skipped.
func NewLayout(root string) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.WrapInput(err, "cannot resolve BIDS directory %s", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errs.WrapInput(err, "cannot read BIDS directory %s", root)
	}
	if !info.IsDir() {
		return nil, errs.Input("%s is not a directory", root)
	}

	layout := &Layout{root: abs}
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == abs {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if filepath.Dir(path) == abs && ignoredRootDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(name, "sub-") {
			return nil
		}

		entities, suffix, extension := ParseFilename(name)
		file := File{
			Path:      path,
			Entities:  entities,
			Suffix:    suffix,
			Extension: extension,
		}
		if parent := filepath.Base(filepath.Dir(path)); datatypes[parent] {
			file.Datatype = parent
		}
		layout.files = append(layout.files, file)
		return nil
	})
	if err != nil {
		return nil, errs.WrapInput(err, "cannot index BIDS directory %s", root)
	}

	sort.Slice(layout.files, func(i, j int) bool {
		return layout.files[i].Path < layout.files[j].Path
	})

	return layout, nil
}

// Root returns the absolute dataset root
func (l *Layout) Root() string {
	return l.root
}

// Files returns every indexed file
func (l *Layout) Files() []File {
	return l.files
}

// Query selects files. Empty fields match everything; list fields match any
// of their values.
type Query struct {
	Subject   []string
	Session   []string
	Run       []string
	Task      []string
	Suffix    string
	Space     string
	Extension string
	Datatype  string
}

// Get returns the sorted absolute paths of the files matching q
func (l *Layout) Get(q Query) []string {
	var paths []string
	for _, f := range l.files {
		if q.Matches(f) {
			paths = append(paths, f.Path)
		}
	}
	return paths
}

// Matches reports whether f satisfies every constraint of q
func (q Query) Matches(f File) bool {
	if !matchAny(f.Entities, "sub", trimPrefix(q.Subject, "sub-"), equalString) {
		return false
	}
	if !matchAny(f.Entities, "ses", trimPrefix(q.Session, "ses-"), equalString) {
		return false
	}
	if !matchAny(f.Entities, "task", q.Task, equalString) {
		return false
	}
	if !matchAny(f.Entities, "run", q.Run, equalRun) {
		return false
	}
	if q.Space != "" && !matchAny(f.Entities, "space", []string{q.Space}, equalString) {
		return false
	}
	if q.Suffix != "" && f.Suffix != q.Suffix {
		return false
	}
	if q.Datatype != "" && f.Datatype != q.Datatype {
		return false
	}
	if q.Extension != "" && f.Extension != normalizeExtension(q.Extension) {
		return false
	}
	return true
}

func matchAny(entities map[string]string, key string, values []string, eq func(a, b string) bool) bool {
	if len(values) == 0 {
		return true
	}
	have, ok := entities[key]
	if !ok {
		return false
	}
	for _, v := range values {
		if eq(have, v) {
			return true
		}
	}
	return false
}

func equalString(a, b string) bool {
	return a == b
}

// equalRun compares run labels as integers so that run-01 matches 1
func equalRun(a, b string) bool {
	x, errX := strconv.Atoi(a)
	y, errY := strconv.Atoi(b)
	if errX == nil && errY == nil {
		return x == y
	}
	return a == b
}

func trimPrefix(values []string, prefix string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimPrefix(v, prefix)
	}
	return out
}

func normalizeExtension(ext string) string {
	if strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}
