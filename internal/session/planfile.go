package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/process-triage/pt-core/internal/identity"
)

// PlanSchemaVersion is the schema version stamped on every plan.json.
const PlanSchemaVersion = "1"

// Plan is the session's resolved action plan: one PlanAction per
// candidate the Decision Engine ruled on. It lives under the decision/
// subdirectory and survives until verify completes or the session is
// archived.
type Plan struct {
	SchemaVersion string             `json:"schema_version"`
	SessionID     identity.SessionID `json:"session_id"`
	CreatedAt     time.Time          `json:"created_at"`
	Actions       []PlanAction       `json:"actions"`
}

// PlanPath is where a layout's plan document lives.
func (l Layout) PlanPath() string {
	return filepath.Join(l.Decision, "plan.json")
}

// WritePlan persists p atomically to the layout's decision directory.
func WritePlan(l Layout, p Plan) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal plan: %w", err)
	}
	if err := renameio.WriteFile(l.PlanPath(), data, 0o600); err != nil {
		return fmt.Errorf("session: write plan %s: %w", l.PlanPath(), err)
	}
	return nil
}

// ReadPlan loads and validates the plan document at the layout's
// decision directory, rejecting unknown schema versions.
func ReadPlan(l Layout) (Plan, error) {
	data, err := os.ReadFile(l.PlanPath())
	if err != nil {
		return Plan{}, fmt.Errorf("session: read plan %s: %w", l.PlanPath(), err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("session: parse plan %s: %w", l.PlanPath(), err)
	}
	if p.SchemaVersion != PlanSchemaVersion {
		return Plan{}, fmt.Errorf("session: plan %s has unsupported schema version %q", l.PlanPath(), p.SchemaVersion)
	}
	return p, nil
}
