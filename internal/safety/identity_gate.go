package safety

import (
	"fmt"

	"github.com/process-triage/pt-core/internal/identity"
)

// CheckIdentityGate requires the live ProcessIdentity (re-read from the
// OS immediately before execution) to exactly match the one recorded in
// the PlanAction target. Any mismatch — PID reuse, UID change, start-id
// drift — fails identity_mismatch.
func CheckIdentityGate(recorded, live identity.ProcessIdentity) PreCheckResult {
	if !recorded.Equal(live) {
		res := fail("identity_mismatch", fmt.Sprintf(
			"recorded pid=%d start_id=%s uid=%d does not match live pid=%d start_id=%s uid=%d",
			recorded.PID, recorded.StartID, recorded.UID, live.PID, live.StartID, live.UID,
		))
		res.Fields = map[string]string{
			"recorded_start_id": string(recorded.StartID),
			"live_start_id":      string(live.StartID),
		}
		return res
	}
	return pass("identity_gate")
}
