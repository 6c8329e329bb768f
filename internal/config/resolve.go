package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvDataRoot is handled by internal/session; repeated here only for
	// the EXTERNAL INTERFACES env var list's completeness.
	EnvDataRoot   = "PROCESS_TRIAGE_DATA"
	EnvConfigDir  = "PROCESS_TRIAGE_CONFIG"
	EnvPriors     = "PROCESS_TRIAGE_PRIORS"
	EnvPolicy     = "PROCESS_TRIAGE_POLICY"
	EnvXDGConfig  = "XDG_CONFIG_HOME"
	EnvXDGData    = "XDG_DATA_HOME"
	EnvLogLevel   = "PT_LOG"
	EnvLogFormat  = "PT_LOG_FORMAT"
)

// EtcConfigDir is the system-wide fallback config directory, tried
// after XDG_CONFIG_HOME and before built-in defaults.
const EtcConfigDir = "/etc/process-triage"

// resolvedPath is an on-disk candidate with the source kind that found
// it, or the zero ConfigSourceKind with an empty path when nothing on
// disk was found and the built-in default should be used.
type resolvedPath struct {
	kind ConfigSourceKind
	path string
}

// ResolvePriorsPath implements spec.md's resolution order for
// priors.json: CLI flag -> PROCESS_TRIAGE_PRIORS -> <PROCESS_TRIAGE_CONFIG>/priors.json
// -> <XDG_CONFIG_HOME>/process-triage/priors.json -> /etc/process-triage/priors.json.
// It returns ok=false when none of those exist, signaling the caller to
// fall back to DefaultPriors().
func ResolvePriorsPath(cliFlag string) (resolvedPath, bool) {
	return resolveConfigFile(cliFlag, EnvPriors, "priors.json")
}

// ResolvePolicyPath is ResolvePriorsPath's twin for policy.json.
func ResolvePolicyPath(cliFlag string) (resolvedPath, bool) {
	return resolveConfigFile(cliFlag, EnvPolicy, "policy.json")
}

func resolveConfigFile(cliFlag, envVar, filename string) (resolvedPath, bool) {
	if cliFlag != "" {
		return resolvedPath{kind: SourceCLIFlag, path: cliFlag}, true
	}
	if v := os.Getenv(envVar); v != "" {
		return resolvedPath{kind: SourceEnvVar, path: v}, true
	}
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		p := filepath.Join(dir, filename)
		if fileExists(p) {
			return resolvedPath{kind: SourceEnvConfigDir, path: p}, true
		}
	}
	if dir := os.Getenv(EnvXDGConfig); dir != "" {
		p := filepath.Join(dir, "process-triage", filename)
		if fileExists(p) {
			return resolvedPath{kind: SourceXDGConfigHome, path: p}, true
		}
	}
	p := filepath.Join(EtcConfigDir, filename)
	if fileExists(p) {
		return resolvedPath{kind: SourceEtc, path: p}, true
	}
	return resolvedPath{}, false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
