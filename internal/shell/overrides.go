package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// CandidateFile is the on-disk form of per-host shell overrides.
//
//	preferred: zsh
//	shells:
//	  pwsh:
//	    - /opt/microsoft/powershell/*/pwsh
//	  bash:
//	    - /opt/homebrew/bin/bash
type CandidateFile struct {
	Preferred string              `yaml:"preferred" toml:"preferred"`
	Shells    map[string][]string `yaml:"shells" toml:"shells"`
}

// LoadCandidateFile reads a YAML or TOML override file, chosen by
// extension. Unknown kinds are rejected.
func LoadCandidateFile(path string) (*CandidateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shell candidates: %w", err)
	}

	var file CandidateFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	case ".toml":
		err = toml.Unmarshal(data, &file)
	default:
		return nil, fmt.Errorf("unsupported shell candidates format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse shell candidates %s: %w", path, err)
	}

	for name := range file.Shells {
		if _, ok := ParseKind(name); !ok {
			return nil, fmt.Errorf("unknown shell kind %q in %s", name, path)
		}
	}
	if file.Preferred != "" {
		if _, ok := ParseKind(file.Preferred); !ok {
			return nil, fmt.Errorf("unknown preferred shell %q in %s", file.Preferred, path)
		}
	}
	return &file, nil
}

// Apply merges the file into opts. An explicit opts.Preferred wins.
func (f *CandidateFile) Apply(opts Options) Options {
	if opts.Extra == nil {
		opts.Extra = make(map[Kind][]string)
	}
	for name, candidates := range f.Shells {
		kind, _ := ParseKind(name)
		opts.Extra[kind] = append(opts.Extra[kind], candidates...)
	}
	if opts.Preferred == "" && f.Preferred != "" {
		opts.Preferred, _ = ParseKind(f.Preferred)
	}
	return opts
}
