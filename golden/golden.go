// Package golden locates the expected-output file for a test through an ordered,
// environment-aware fallback search.
package golden

import (
	"os"
	"path/filepath"
)

// Extension is appended to every candidate name
const Extension = ".good"

// Environment describes the machine a run targets; each field contributes a tag to the
// candidate names. Empty fields are skipped.
type Environment struct {
	Machine     string `yaml:"machine"`      // short host name
	Comm        string `yaml:"comm"`         // communication layer, e.g. "none", "gasnet"
	LocaleModel string `yaml:"locale_model"` // e.g. "flat"
	Platform    string `yaml:"platform"`
	NoLocal     bool   `yaml:"no_local"`
}

// CommTag returns the ".comm-<comm>" tag, or "" when no comm layer is set
func (e Environment) CommTag() string {
	if e.Comm == "" {
		return ""
	}
	return ".comm-" + e.Comm
}

// LocaleModelTag returns the ".lm-<model>" tag, or "" when no locale model is set
func (e Environment) LocaleModelTag() string {
	if e.LocaleModel == "" {
		return ""
	}
	return ".lm-" + e.LocaleModel
}

// Query asks for the golden file of one basename.
// Suffixes are tried most specific first; nil means a single empty suffix.
type Query struct {
	Basename string
	Env      Environment
	Suffixes []string
}

// ExistsFunc reports whether path names a readable regular file
type ExistsFunc func(path string) bool

// Resolver searches candidates relative to Dir
type Resolver struct {
	Dir    string
	Exists ExistsFunc
}

// NewResolver returns a resolver backed by the filesystem under dir
func NewResolver(dir string) *Resolver {
	return &Resolver{Dir: dir, Exists: FileReadable}
}

// FileReadable is the default ExistsFunc
func FileReadable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// Candidates lists, in priority order, every name tried for one suffix
func Candidates(basename string, env Environment, suffix string) []string {
	var names []string
	if env.Machine != "" {
		names = append(names, basename+"."+env.Machine+suffix+Extension)
	}
	if env.NoLocal {
		names = append(names, basename+".no-local"+suffix+Extension)
	}
	if env.Comm != "" && env.LocaleModel != "" {
		names = append(names, basename+env.CommTag()+env.LocaleModelTag()+suffix+Extension)
	}
	if env.Comm != "" {
		names = append(names, basename+env.CommTag()+suffix+Extension)
	}
	if env.LocaleModel != "" {
		names = append(names, basename+env.LocaleModelTag()+suffix+Extension)
	}
	if env.Platform != "" {
		names = append(names, basename+"."+env.Platform+suffix+Extension)
	}
	return append(names, basename+suffix+Extension)
}

// Resolve returns the first existing candidate as a name relative to Dir. When nothing
// exists it returns the plain name for the last suffix and found is false; callers must
// treat that as a missing golden file rather than empty expected output.
func (r *Resolver) Resolve(q Query) (name string, found bool) {
	suffixes := q.Suffixes
	if len(suffixes) == 0 {
		suffixes = []string{""}
	}
	exists := r.Exists
	if exists == nil {
		exists = FileReadable
	}
	for _, suffix := range suffixes {
		for _, candidate := range Candidates(q.Basename, q.Env, suffix) {
			if exists(filepath.Join(r.Dir, candidate)) {
				return candidate, true
			}
		}
	}
	return q.Basename + suffixes[len(suffixes)-1] + Extension, false
}
