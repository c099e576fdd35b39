//go:build !windows

package shell

var full = Capabilities{Color: true, Unicode: true, Resize: true, NativePTY: true}

// DefaultTable is the ranked shell table for Unix hosts. The last entry is
// the baseline.
func DefaultTable() []Spec {
	return []Spec{
		{
			Kind:         KindBash,
			Role:         RolePrimary,
			Capabilities: full,
			Paths:        []string{"/bin/bash", "/usr/bin/bash", "/usr/local/bin/bash", "/opt/homebrew/bin/bash"},
			Names:        []string{"bash"},
			Args:         []string{"-i"},
			VersionArgs:  []string{"--version"},
		},
		{
			Kind:         KindZsh,
			Role:         RoleAlternate,
			Capabilities: full,
			Paths:        []string{"/bin/zsh", "/usr/bin/zsh", "/usr/local/bin/zsh", "/opt/homebrew/bin/zsh"},
			Names:        []string{"zsh"},
			Args:         []string{"-i"},
			VersionArgs:  []string{"--version"},
		},
		{
			Kind:         KindFish,
			Role:         RoleAlternate,
			Capabilities: full,
			Paths:        []string{"/usr/bin/fish", "/usr/local/bin/fish", "/opt/homebrew/bin/fish"},
			Names:        []string{"fish"},
			Args:         []string{"-i"},
			VersionArgs:  []string{"--version"},
		},
		{
			Kind:         KindPwsh,
			Role:         RoleAlternate,
			Capabilities: full,
			Paths:        []string{"/usr/bin/pwsh", "/usr/local/bin/pwsh", "/opt/homebrew/bin/pwsh", "/snap/bin/pwsh"},
			Globs:        []string{"/opt/microsoft/powershell/*/pwsh"},
			Names:        []string{"pwsh"},
			Args:         []string{"-NoLogo"},
			VersionArgs:  []string{"--version"},
		},
		{
			Kind:         KindSh,
			Role:         RoleBaseline,
			Capabilities: Capabilities{Resize: true, NativePTY: true},
			Paths:        []string{"/bin/sh", "/usr/bin/sh"},
			Names:        []string{"sh"},
			Args:         []string{"-i"},
			Fallback:     "/bin/sh",
		},
	}
}
