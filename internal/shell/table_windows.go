//go:build windows

package shell

// DefaultTable is the ranked shell table for Windows hosts. The last entry
// is the baseline. Windows shells run over pipes, so none report NativePTY.
func DefaultTable() []Spec {
	return []Spec{
		{
			Kind:         KindPwsh,
			Role:         RolePrimary,
			Capabilities: Capabilities{Color: true, Unicode: true, Resize: true},
			Globs: []string{
				"${ProgramFiles}/PowerShell/*/pwsh.exe",
				"${LOCALAPPDATA}/Microsoft/WindowsApps/pwsh.exe",
			},
			Names:       []string{"pwsh.exe"},
			Args:        []string{"-NoLogo"},
			VersionArgs: []string{"--version"},
		},
		{
			Kind:         KindPowerShell,
			Role:         RoleAlternate,
			Capabilities: Capabilities{Color: true, Resize: true},
			Paths:        []string{"${SystemRoot}\\System32\\WindowsPowerShell\\v1.0\\powershell.exe"},
			Names:        []string{"powershell.exe"},
			Args:         []string{"-NoLogo"},
			VersionArgs:  []string{"-NoLogo", "-NoProfile", "-Command", "$PSVersionTable.PSVersion.ToString()"},
		},
		{
			Kind:         KindBash,
			Role:         RolePOSIXCompat,
			Capabilities: Capabilities{Color: true, Unicode: true, Resize: true},
			Paths: []string{
				"${ProgramFiles}\\Git\\bin\\bash.exe",
				"${ProgramFiles(x86)}\\Git\\bin\\bash.exe",
			},
			Globs:       []string{"${LOCALAPPDATA}/Programs/Git/bin/bash.exe"},
			Args:        []string{"--login", "-i"},
			VersionArgs: []string{"--version"},
		},
		{
			Kind:         KindWSL,
			Role:         RoleRemoteSubsystem,
			Capabilities: Capabilities{Color: true, Unicode: true, Resize: true},
			Paths:        []string{"${SystemRoot}\\System32\\wsl.exe"},
			Names:        []string{"wsl.exe"},
			VersionArgs:  []string{"--version"},
		},
		{
			Kind:         KindCmd,
			Role:         RoleBaseline,
			Capabilities: Capabilities{},
			Paths:        []string{"${ComSpec}", "${SystemRoot}\\System32\\cmd.exe"},
			Names:        []string{"cmd.exe"},
			VersionArgs:  []string{"/c", "ver"},
			Fallback:     "C:\\Windows\\System32\\cmd.exe",
		},
	}
}
