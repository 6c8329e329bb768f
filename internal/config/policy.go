package config

import (
	"fmt"
	"regexp"

	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/safety"
)

// LossRowDoc is the on-disk form of one LossMatrix row. Pointer fields
// mirror decision.LossRow: nil means "not configured for this class"
// rather than zero loss.
type LossRowDoc struct {
	Keep       float64  `json:"keep" yaml:"keep"`
	Renice     *float64 `json:"renice,omitempty" yaml:"renice,omitempty"`
	Pause      *float64 `json:"pause,omitempty" yaml:"pause,omitempty"`
	Throttle   *float64 `json:"throttle,omitempty" yaml:"throttle,omitempty"`
	Freeze     *float64 `json:"freeze,omitempty" yaml:"freeze,omitempty"`
	Quarantine *float64 `json:"quarantine,omitempty" yaml:"quarantine,omitempty"`
	Restart    *float64 `json:"restart,omitempty" yaml:"restart,omitempty"`
	Kill       float64  `json:"kill" yaml:"kill"`
}

func (r LossRowDoc) toRow() decision.LossRow {
	return decision.LossRow{
		Keep:       r.Keep,
		Renice:     r.Renice,
		Pause:      r.Pause,
		Throttle:   r.Throttle,
		Freeze:     r.Freeze,
		Quarantine: r.Quarantine,
		Restart:    r.Restart,
		Kill:       r.Kill,
	}
}

// LossMatrixDoc is the on-disk 4xAction loss table.
type LossMatrixDoc struct {
	Useful    LossRowDoc `json:"useful" yaml:"useful"`
	UsefulBad LossRowDoc `json:"useful_bad" yaml:"useful_bad"`
	Abandoned LossRowDoc `json:"abandoned" yaml:"abandoned"`
	Zombie    LossRowDoc `json:"zombie" yaml:"zombie"`
}

func (m LossMatrixDoc) toMatrix() decision.LossMatrix {
	return decision.LossMatrix{
		Useful:    m.Useful.toRow(),
		UsefulBad: m.UsefulBad.toRow(),
		Abandoned: m.Abandoned.toRow(),
		Zombie:    m.Zombie.toRow(),
	}
}

// ProtectedRuleDoc is one protected-pattern rule as written in
// policy.json: exactly one of Literal or Pattern should be set.
type ProtectedRuleDoc struct {
	Field   string `json:"field" yaml:"field"`
	Literal string `json:"literal,omitempty" yaml:"literal,omitempty"`
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

func parseProtectedField(s string) (safety.ProtectedField, error) {
	switch s {
	case "command":
		return safety.FieldCommand, nil
	case "basename":
		return safety.FieldBasename, nil
	case "user":
		return safety.FieldUser, nil
	case "cgroup":
		return safety.FieldCgroup, nil
	default:
		return 0, fmt.Errorf("unknown protected-pattern field %q", s)
	}
}

// RobotModeConfigDoc mirrors safety.RobotModeConfig.
type RobotModeConfigDoc struct {
	Enabled               bool    `json:"enabled" yaml:"enabled"`
	PosteriorFloor        float64 `json:"posterior_floor" yaml:"posterior_floor"`
	BlastRadiusCapMB      float64 `json:"blast_radius_cap_mb" yaml:"blast_radius_cap_mb"`
	KillCountCap          int     `json:"kill_count_cap" yaml:"kill_count_cap"`
	RequireKnownSignature bool    `json:"require_known_signature" yaml:"require_known_signature"`
}

// DataLossGateConfigDoc mirrors safety.DataLossGateConfig.
type DataLossGateConfigDoc struct {
	RecentIOThresholdSeconds float64 `json:"recent_io_threshold_seconds" yaml:"recent_io_threshold_seconds"`
}

// LoadWeightsDoc mirrors decision.LoadWeights.
type LoadWeightsDoc struct {
	Queue  float64 `json:"queue" yaml:"queue"`
	Load   float64 `json:"load" yaml:"load"`
	Memory float64 `json:"memory" yaml:"memory"`
	PSI    float64 `json:"psi" yaml:"psi"`
}

// LoadMultipliersDoc mirrors decision.LoadMultipliers.
type LoadMultipliersDoc struct {
	KeepMax       float64 `json:"keep_max" yaml:"keep_max"`
	ReversibleMin float64 `json:"reversible_min" yaml:"reversible_min"`
	RiskyMax      float64 `json:"risky_max" yaml:"risky_max"`
}

// LoadAwareConfigDoc mirrors decision.LoadAwareConfig.
type LoadAwareConfigDoc struct {
	Enabled                bool                `json:"enabled" yaml:"enabled"`
	QueueHigh              int                 `json:"queue_high" yaml:"queue_high"`
	LoadPerCoreHigh        float64             `json:"load_per_core_high" yaml:"load_per_core_high"`
	MemoryUsedFractionHigh float64             `json:"memory_used_fraction_high" yaml:"memory_used_fraction_high"`
	PSIAvg10High           float64             `json:"psi_avg10_high" yaml:"psi_avg10_high"`
	Weights                LoadWeightsDoc      `json:"weights" yaml:"weights"`
	Multipliers            LoadMultipliersDoc  `json:"multipliers" yaml:"multipliers"`
}

func (d LoadAwareConfigDoc) toConfig() decision.LoadAwareConfig {
	return decision.LoadAwareConfig{
		Enabled:                d.Enabled,
		QueueHigh:              d.QueueHigh,
		LoadPerCoreHigh:        d.LoadPerCoreHigh,
		MemoryUsedFractionHigh: d.MemoryUsedFractionHigh,
		PSIAvg10High:           d.PSIAvg10High,
		Weights: decision.LoadWeights{
			Queue: d.Weights.Queue, Load: d.Weights.Load, Memory: d.Weights.Memory, PSI: d.Weights.PSI,
		},
		Multipliers: decision.LoadMultipliers{
			KeepMax: d.Multipliers.KeepMax, ReversibleMin: d.Multipliers.ReversibleMin, RiskyMax: d.Multipliers.RiskyMax,
		},
	}
}

// ImpactWeightsDoc mirrors decision.ImpactWeights.
type ImpactWeightsDoc struct {
	Child        float64 `json:"child" yaml:"child"`
	Connection   float64 `json:"connection" yaml:"connection"`
	ListenPort   float64 `json:"listen_port" yaml:"listen_port"`
	WritableFD   float64 `json:"writable_fd" yaml:"writable_fd"`
	SharedMemory float64 `json:"shared_memory" yaml:"shared_memory"`
}

func (d ImpactWeightsDoc) toWeights() decision.ImpactWeights {
	return decision.ImpactWeights{
		Child: d.Child, Connection: d.Connection, ListenPort: d.ListenPort,
		WritableFD: d.WritableFD, SharedMemory: d.SharedMemory,
	}
}

// FDRConfigDoc mirrors decision.FDRConfig; Method is "bh" or "by".
type FDRConfigDoc struct {
	Method string  `json:"method" yaml:"method"`
	Alpha  float64 `json:"alpha" yaml:"alpha"`
}

func (d FDRConfigDoc) toConfig() (decision.FDRConfig, error) {
	switch d.Method {
	case "", "bh":
		return decision.FDRConfig{Method: decision.FDRMethodBH, Alpha: d.Alpha}, nil
	case "by":
		return decision.FDRConfig{Method: decision.FDRMethodBY, Alpha: d.Alpha}, nil
	default:
		return decision.FDRConfig{}, fmt.Errorf("unknown fdr.method %q", d.Method)
	}
}

// AlphaInvestingConfigDoc mirrors decision.AlphaInvestingConfig.
type AlphaInvestingConfigDoc struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	AlphaSpend    float64 `json:"alpha_spend" yaml:"alpha_spend"`
	AlphaEarn     float64 `json:"alpha_earn" yaml:"alpha_earn"`
	InitialWealth float64 `json:"initial_wealth" yaml:"initial_wealth"`
}

func (d AlphaInvestingConfigDoc) toConfig() decision.AlphaInvestingConfig {
	return decision.AlphaInvestingConfig{
		Enabled: d.Enabled, AlphaSpend: d.AlphaSpend, AlphaEarn: d.AlphaEarn, InitialWealth: d.InitialWealth,
	}
}

// CVaRConfigDoc configures the risk-sensitive decision rule.
type CVaRConfigDoc struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Alpha   float64 `json:"alpha" yaml:"alpha"`
}

// PolicyDoc is the on-disk schema of policy.json: the loss matrix,
// safety guardrails, and the optional risk-sensitive and FDR-control
// blocks.
type PolicyDoc struct {
	SchemaVersion    string                  `json:"schema_version" yaml:"schema_version"`
	LossMatrix       LossMatrixDoc           `json:"loss_matrix" yaml:"loss_matrix"`
	ProtectedPatterns []ProtectedRuleDoc      `json:"protected_patterns" yaml:"protected_patterns"`
	DataLossGate     DataLossGateConfigDoc   `json:"data_loss_gate" yaml:"data_loss_gate"`
	RobotMode        RobotModeConfigDoc      `json:"robot_mode" yaml:"robot_mode"`
	LoadAware        LoadAwareConfigDoc      `json:"load_aware" yaml:"load_aware"`
	ImpactWeights    ImpactWeightsDoc        `json:"impact_weights" yaml:"impact_weights"`
	CVaR             CVaRConfigDoc           `json:"cvar" yaml:"cvar"`
	FDR              FDRConfigDoc            `json:"fdr" yaml:"fdr"`
	AlphaInvesting   AlphaInvestingConfigDoc `json:"alpha_investing" yaml:"alpha_investing"`
}

// PolicySchemaVersion is the only schema version this loader accepts.
const PolicySchemaVersion = "1"

// Policy is the fully-resolved, ready-to-use bundle the Decision Engine
// and Safety Gate consume; it is PolicyDoc with every sub-block
// converted to its runtime type and every protected-pattern regex
// compiled.
type Policy struct {
	LossMatrix        decision.LossMatrix
	ProtectedRules    safety.ProtectedRuleSet
	DataLossGate      safety.DataLossGateConfig
	RobotMode         safety.RobotModeConfig
	LoadAware         decision.LoadAwareConfig
	ImpactWeights     decision.ImpactWeights
	CVaREnabled       bool
	CVaRAlpha         float64
	FDR               decision.FDRConfig
	AlphaInvesting    decision.AlphaInvestingConfig
}

// DefaultPolicy matches the original's conservative posture: generous
// losses for Kill on useful classes, near-zero loss for killing a
// zombie, every guardrail present but load-aware scaling and
// alpha-investing disabled until an operator opts in.
func DefaultPolicy() PolicyDoc {
	f := func(v float64) *float64 { return &v }
	return PolicyDoc{
		SchemaVersion: PolicySchemaVersion,
		LossMatrix: LossMatrixDoc{
			Useful:    LossRowDoc{Keep: 0, Renice: f(1), Pause: f(5), Throttle: f(3), Freeze: f(8), Quarantine: f(10), Restart: f(50), Kill: 100},
			UsefulBad: LossRowDoc{Keep: 5, Renice: f(1), Pause: f(2), Throttle: f(1), Freeze: f(3), Quarantine: f(2), Restart: f(10), Kill: 20},
			Abandoned: LossRowDoc{Keep: 3, Renice: f(2), Pause: f(1), Throttle: f(1), Freeze: f(1), Quarantine: f(2), Restart: f(3), Kill: 2},
			Zombie:    LossRowDoc{Keep: 10, Renice: f(5), Pause: f(5), Throttle: f(5), Freeze: f(5), Quarantine: f(5), Restart: f(1), Kill: 0.1},
		},
		ProtectedPatterns: []ProtectedRuleDoc{
			{Field: "command", Pattern: "^(systemd|init|kernel_task|launchd)$"},
			{Field: "basename", Literal: "sshd"},
		},
		DataLossGate: DataLossGateConfigDoc{RecentIOThresholdSeconds: 10},
		RobotMode: RobotModeConfigDoc{
			Enabled: false, PosteriorFloor: 0.9, BlastRadiusCapMB: 4096, KillCountCap: 5, RequireKnownSignature: false,
		},
		LoadAware: LoadAwareConfigDoc{
			Enabled: false, QueueHigh: 100, LoadPerCoreHigh: 2.0, MemoryUsedFractionHigh: 0.9, PSIAvg10High: 50.0,
			Weights:     LoadWeightsDoc{Queue: 1, Load: 1, Memory: 1, PSI: 1},
			Multipliers: LoadMultipliersDoc{KeepMax: 2.0, ReversibleMin: 0.5, RiskyMax: 3.0},
		},
		ImpactWeights: ImpactWeightsDoc{Child: 1, Connection: 1, ListenPort: 1, WritableFD: 1, SharedMemory: 1},
		CVaR:          CVaRConfigDoc{Enabled: false, Alpha: 0.95},
		FDR:           FDRConfigDoc{Method: "bh", Alpha: 0.1},
		AlphaInvesting: AlphaInvestingConfigDoc{
			Enabled: false, AlphaSpend: 0.05, AlphaEarn: 0.10, InitialWealth: 1.0,
		},
	}
}

// ToPolicy converts the on-disk doc into the fully-resolved runtime
// Policy, compiling every protected-pattern regex.
func (d PolicyDoc) ToPolicy() (Policy, error) {
	rules := make([]safety.ProtectedRule, 0, len(d.ProtectedPatterns))
	for i, rd := range d.ProtectedPatterns {
		field, err := parseProtectedField(rd.Field)
		if err != nil {
			return Policy{}, fmt.Errorf("policy.protected_patterns[%d]: %w", i, err)
		}
		rule := safety.ProtectedRule{Field: field, Literal: rd.Literal}
		if rd.Pattern != "" {
			re, err := regexp.Compile(rd.Pattern)
			if err != nil {
				return Policy{}, fmt.Errorf("policy.protected_patterns[%d]: compile pattern %q: %w", i, rd.Pattern, err)
			}
			rule.Pattern = re
		}
		rules = append(rules, rule)
	}

	fdr, err := d.FDR.toConfig()
	if err != nil {
		return Policy{}, fmt.Errorf("policy.fdr: %w", err)
	}

	return Policy{
		LossMatrix:     d.LossMatrix.toMatrix(),
		ProtectedRules: safety.ProtectedRuleSet{Rules: rules},
		DataLossGate:   safety.DataLossGateConfig{RecentIOThresholdSeconds: d.DataLossGate.RecentIOThresholdSeconds},
		RobotMode: safety.RobotModeConfig{
			Enabled:               d.RobotMode.Enabled,
			PosteriorFloor:        d.RobotMode.PosteriorFloor,
			BlastRadiusCapMB:      d.RobotMode.BlastRadiusCapMB,
			KillCountCap:          d.RobotMode.KillCountCap,
			RequireKnownSignature: d.RobotMode.RequireKnownSignature,
		},
		LoadAware:      d.LoadAware.toConfig(),
		ImpactWeights:  d.ImpactWeights.toWeights(),
		CVaREnabled:    d.CVaR.Enabled,
		CVaRAlpha:      d.CVaR.Alpha,
		FDR:            fdr,
		AlphaInvesting: d.AlphaInvesting.toConfig(),
	}, nil
}

// ValidatePolicy checks schema version and every numeric range the
// downstream packages assume but do not themselves enforce.
func ValidatePolicy(d PolicyDoc) error {
	var errs []string
	if d.SchemaVersion != PolicySchemaVersion {
		errs = append(errs, fmt.Sprintf("policy.schema_version must be %q, got %q", PolicySchemaVersion, d.SchemaVersion))
	}
	negativeLoss := false
	for _, row := range []LossRowDoc{d.LossMatrix.Useful, d.LossMatrix.UsefulBad, d.LossMatrix.Abandoned, d.LossMatrix.Zombie} {
		for _, v := range []*float64{&row.Keep, row.Renice, row.Pause, row.Throttle, row.Freeze, row.Quarantine, row.Restart, &row.Kill} {
			if v != nil && *v < 0 {
				negativeLoss = true
			}
		}
	}
	if negativeLoss {
		errs = append(errs, "loss_matrix entries must be non-negative")
	}
	for i, rd := range d.ProtectedPatterns {
		if _, err := parseProtectedField(rd.Field); err != nil {
			errs = append(errs, fmt.Sprintf("protected_patterns[%d]: %v", i, err))
		}
		if rd.Pattern != "" {
			if _, err := regexp.Compile(rd.Pattern); err != nil {
				errs = append(errs, fmt.Sprintf("protected_patterns[%d]: invalid pattern: %v", i, err))
			}
		}
	}
	if d.RobotMode.Enabled {
		if d.RobotMode.PosteriorFloor < 0 || d.RobotMode.PosteriorFloor > 1 {
			errs = append(errs, fmt.Sprintf("robot_mode.posterior_floor must be in [0,1], got %f", d.RobotMode.PosteriorFloor))
		}
		if d.RobotMode.KillCountCap < 0 {
			errs = append(errs, "robot_mode.kill_count_cap must be >= 0")
		}
	}
	if d.CVaR.Enabled && (d.CVaR.Alpha <= 0 || d.CVaR.Alpha >= 1) {
		errs = append(errs, fmt.Sprintf("cvar.alpha must be in (0,1), got %f", d.CVaR.Alpha))
	}
	if d.FDR.Method != "" && d.FDR.Method != "bh" && d.FDR.Method != "by" {
		errs = append(errs, fmt.Sprintf("fdr.method must be \"bh\" or \"by\", got %q", d.FDR.Method))
	}
	if d.FDR.Alpha <= 0 || d.FDR.Alpha >= 1 {
		errs = append(errs, fmt.Sprintf("fdr.alpha must be in (0,1), got %f", d.FDR.Alpha))
	}
	if d.AlphaInvesting.Enabled {
		if d.AlphaInvesting.AlphaSpend <= 0 || d.AlphaInvesting.AlphaSpend >= 1 {
			errs = append(errs, fmt.Sprintf("alpha_investing.alpha_spend must be in (0,1), got %f", d.AlphaInvesting.AlphaSpend))
		}
		if d.AlphaInvesting.InitialWealth <= 0 {
			errs = append(errs, "alpha_investing.initial_wealth must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("policy validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}
