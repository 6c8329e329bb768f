package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/process-triage/pt-core/internal/decision"
)

func TestDefaultsValidateAndConvert(t *testing.T) {
	require.NoError(t, ValidatePriors(DefaultPriors()))
	require.NoError(t, ValidatePolicy(DefaultPolicy()))

	policy, err := DefaultPolicy().ToPolicy()
	require.NoError(t, err)
	assert.NotEmpty(t, policy.ProtectedRules.Rules)

	// The engine expects L[useful][kill] >> L[abandoned][kill] and
	// L[zombie][kill] near zero.
	useful, ok := policy.LossMatrix.Useful.Get(decision.ActionKill)
	require.True(t, ok)
	abandoned, ok := policy.LossMatrix.Abandoned.Get(decision.ActionKill)
	require.True(t, ok)
	zombie, ok := policy.LossMatrix.Zombie.Get(decision.ActionKill)
	require.True(t, ok)
	assert.Greater(t, useful, 10*abandoned)
	assert.Less(t, zombie, 1.0)
}

func TestLoadFallsBackToBuiltinDefaults(t *testing.T) {
	t.Setenv(EnvPriors, "")
	t.Setenv(EnvPolicy, "")
	t.Setenv(EnvConfigDir, "")
	t.Setenv(EnvXDGConfig, filepath.Join(t.TempDir(), "empty"))

	resolved, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, SourceBuiltinDefault, resolved.Snapshot.Priors.Kind)
	assert.Equal(t, SourceBuiltinDefault, resolved.Snapshot.Policy.Kind)
	assert.Empty(t, resolved.Snapshot.Priors.SHA256)
}

func TestLoadRecordsSourcePathAndHash(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.json")
	data, err := json.Marshal(DefaultPolicy())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(policyPath, data, 0o600))

	t.Setenv(EnvPriors, "")
	t.Setenv(EnvConfigDir, "")
	t.Setenv(EnvXDGConfig, filepath.Join(dir, "empty"))

	resolved, err := Load(LoadOptions{PolicyPath: policyPath})
	require.NoError(t, err)
	assert.Equal(t, SourceCLIFlag, resolved.Snapshot.Policy.Kind)
	assert.Equal(t, policyPath, resolved.Snapshot.Policy.Path)
	assert.Len(t, resolved.Snapshot.Policy.SHA256, 64)
}

func TestLoadHonorsEnvVarResolution(t *testing.T) {
	dir := t.TempDir()
	priorsPath := filepath.Join(dir, "custom-priors.json")
	data, err := json.Marshal(DefaultPriors())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(priorsPath, data, 0o600))

	t.Setenv(EnvPriors, priorsPath)
	t.Setenv(EnvPolicy, "")
	t.Setenv(EnvConfigDir, "")
	t.Setenv(EnvXDGConfig, filepath.Join(dir, "empty"))

	resolved, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, SourceEnvVar, resolved.Snapshot.Priors.Kind)
	assert.Equal(t, priorsPath, resolved.Snapshot.Priors.Path)
}

func TestLoadRejectsUnsupportedSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	doc := DefaultPolicy()
	doc.SchemaVersion = "999"
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	policyPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policyPath, data, 0o600))

	t.Setenv(EnvPriors, "")
	t.Setenv(EnvConfigDir, "")
	t.Setenv(EnvXDGConfig, filepath.Join(dir, "empty"))

	_, err = Load(LoadOptions{PolicyPath: policyPath})
	assert.Error(t, err)
}

func TestLoadRejectsInvalidProtectedPattern(t *testing.T) {
	doc := DefaultPolicy()
	doc.ProtectedPatterns = append(doc.ProtectedPatterns, ProtectedRuleDoc{Field: "command", Pattern: "("})
	assert.Error(t, ValidatePolicy(doc))
}

func TestYAMLInputDecodesIntoSameSchema(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "policy.yaml")
	yamlDoc := "schema_version: \"1\"\nloss_matrix:\n  useful:\n    keep: 0\n    kill: 100\n  useful_bad:\n    keep: 5\n    kill: 20\n  abandoned:\n    keep: 3\n    kill: 2\n  zombie:\n    keep: 10\n    kill: 0.1\nfdr:\n  method: bh\n  alpha: 0.1\n"
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlDoc), 0o600))

	t.Setenv(EnvPriors, "")
	t.Setenv(EnvConfigDir, "")
	t.Setenv(EnvXDGConfig, filepath.Join(dir, "empty"))

	resolved, err := Load(LoadOptions{PolicyPath: yamlPath})
	require.NoError(t, err)
	kill, ok := resolved.Policy.LossMatrix.Useful.Get(decision.ActionKill)
	require.True(t, ok)
	assert.Equal(t, 100.0, kill)
}
