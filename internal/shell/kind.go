package shell

import (
	"path/filepath"
	"strings"
)

// Kind is the closed set of shells the catalog knows about
type Kind string

const (
	KindBash       Kind = "bash"
	KindZsh        Kind = "zsh"
	KindFish       Kind = "fish"
	KindSh         Kind = "sh"
	KindPwsh       Kind = "pwsh"
	KindPowerShell Kind = "powershell"
	KindCmd        Kind = "cmd"
	KindWSL        Kind = "wsl"
)

// Kinds lists every known kind
var Kinds = []Kind{KindBash, KindZsh, KindFish, KindSh, KindPwsh, KindPowerShell, KindCmd, KindWSL}

// ParseKind resolves a kind name, case-insensitively
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// KindFromPath guesses a kind from an executable's base name
func KindFromPath(path string) (Kind, bool) {
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(base, ".exe")
	return ParseKind(base)
}

// Role describes a shell's place in the platform ranking
type Role string

const (
	RolePrimary         Role = "primary"
	RoleAlternate       Role = "alternate"
	RolePOSIXCompat     Role = "posix_compat"
	RoleRemoteSubsystem Role = "remote_subsystem"
	RoleBaseline        Role = "baseline"
)

// Capabilities are the features a shell supports
type Capabilities struct {
	Color     bool `json:"color"`
	Unicode   bool `json:"unicode"`
	Resize    bool `json:"resize"`
	NativePTY bool `json:"native_pty"`
}

// Descriptor is one detected (or undetected) shell. Descriptors are values;
// a re-detection replaces the whole set.
type Descriptor struct {
	Kind         Kind         `json:"kind"`
	Role         Role         `json:"role"`
	Path         string       `json:"path,omitempty"`
	Args         []string     `json:"args,omitempty"`
	Priority     int          `json:"priority"`
	Capabilities Capabilities `json:"capabilities"`
	Available    bool         `json:"available"`
	Version      string       `json:"version,omitempty"`
}

// Spec is the static definition of a kind on one platform family
type Spec struct {
	Kind         Kind
	Role         Role
	Capabilities Capabilities
	// Paths are absolute candidates, expanded with os.ExpandEnv
	Paths []string
	// Globs are doublestar patterns, newest match first
	Globs []string
	// Names are looked up on PATH
	Names []string
	// Args are passed to the shell when a session starts
	Args []string
	// VersionArgs make the shell print its version; nil skips resolution
	VersionArgs []string
	// Fallback is the path assumed for the baseline when nothing is found
	Fallback string
}
