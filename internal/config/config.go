// Package config resolves, loads, and validates the two on-disk config
// documents the Decision Engine and Inference Engine depend on:
// priors.json (conjugate-prior parameters per lifecycle class) and
// policy.json (the loss matrix and safety guardrails). Both are JSON
// canonically; a file ending in .yaml/.yml is accepted as a developer
// convenience and parsed the same way.
//
// Resolution order, applied independently to each document: CLI flag ->
// env var -> env-specified config dir -> XDG_CONFIG_HOME ->
// /etc/process-triage/ -> built-in defaults. Every resolved source is
// recorded, path and SHA-256 hash, in a ConfigSnapshot so a session's
// audit trail can reproduce its inputs later.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime hold placeholder defaults; a build can
// override them with -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Resolved bundles the fully-validated, conversion-ready priors and
// policy along with the snapshot recording where they came from.
type Resolved struct {
	Priors   PriorsDoc
	Policy   Policy
	Snapshot ConfigSnapshot
}

// LoadOptions carries the CLI-flag overrides, if any, for the two
// config documents. Either field left empty falls through to the rest
// of the resolution order.
type LoadOptions struct {
	PriorsPath string
	PolicyPath string
}

// Load resolves, reads, parses, and validates priors.json and
// policy.json per the package's resolution order, falling back to
// DefaultPriors/DefaultPolicy when neither is found anywhere on disk.
func Load(opts LoadOptions) (*Resolved, error) {
	priorsDoc, priorsSrc, err := loadPriorsDoc(opts.PriorsPath)
	if err != nil {
		return nil, fmt.Errorf("config.Load: priors: %w", err)
	}
	if err := ValidatePriors(priorsDoc); err != nil {
		return nil, fmt.Errorf("config.Load: priors: %w", err)
	}

	policyDoc, policySrc, err := loadPolicyDoc(opts.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("config.Load: policy: %w", err)
	}
	if err := ValidatePolicy(policyDoc); err != nil {
		return nil, fmt.Errorf("config.Load: policy: %w", err)
	}
	policy, err := policyDoc.ToPolicy()
	if err != nil {
		return nil, fmt.Errorf("config.Load: policy: %w", err)
	}

	return &Resolved{
		Priors: priorsDoc,
		Policy: policy,
		Snapshot: ConfigSnapshot{
			SchemaVersion: SnapshotSchemaVersion,
			Priors:        priorsSrc,
			Policy:        policySrc,
			ResolvedAt:    time.Now().UTC(),
		},
	}, nil
}

func loadPriorsDoc(cliFlag string) (PriorsDoc, ConfigSource, error) {
	rp, ok := ResolvePriorsPath(cliFlag)
	if !ok {
		return DefaultPriors(), ConfigSource{Kind: SourceBuiltinDefault}, nil
	}
	var doc PriorsDoc
	src, err := readAndDecode(rp, &doc)
	return doc, src, err
}

func loadPolicyDoc(cliFlag string) (PolicyDoc, ConfigSource, error) {
	rp, ok := ResolvePolicyPath(cliFlag)
	if !ok {
		return DefaultPolicy(), ConfigSource{Kind: SourceBuiltinDefault}, nil
	}
	var doc PolicyDoc
	src, err := readAndDecode(rp, &doc)
	return doc, src, err
}

func readAndDecode(rp resolvedPath, out interface{}) (ConfigSource, error) {
	data, err := os.ReadFile(rp.path)
	if err != nil {
		return ConfigSource{}, fmt.Errorf("read %q: %w", rp.path, err)
	}
	if err := decodeDoc(rp.path, data, out); err != nil {
		return ConfigSource{}, fmt.Errorf("parse %q: %w", rp.path, err)
	}
	sum := sha256.Sum256(data)
	return ConfigSource{
		Kind:   rp.kind,
		Path:   rp.path,
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

func decodeDoc(path string, data []byte, out interface{}) error {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, out)
	default:
		return json.Unmarshal(data, out)
	}
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
