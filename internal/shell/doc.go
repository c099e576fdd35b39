// Package shell discovers the command shells installed on the host and
// ranks them.
//
// Each platform family has a fixed table of known shell kinds. A kind is
// available when the first of its candidates resolves to an executable
// regular file; candidates are tried as absolute paths, then glob
// patterns (versioned install directories), then names on PATH. The
// ranking never depends on detection order:
//
//	Unix:    bash > zsh > fish > pwsh > sh (baseline)
//	Windows: pwsh > powershell > bash (Git Bash) > wsl > cmd (baseline)
//
// Detection results are cached until ClearCache. Version strings are
// resolved lazily and never block DetectAll.
//
// Example Usage:
//
//	catalog := shell.New(shell.Options{Logger: logger})
//	best := catalog.Optimal()
//	all := catalog.DetectAll()
package shell
