package models

// TriageEvidence is the bag of signals collected while the triage cascade
// runs. Pointer fields stay nil when the corresponding rule never executed,
// which keeps "not measured" distinct from "measured zero".
type TriageEvidence struct {
	DeployCorrelation []string `json:"deploy_correlation,omitempty"`
	UsageCorrelation  []string `json:"usage_correlation,omitempty"`
	InfraCorrelation  []string `json:"infra_correlation,omitempty"`

	RICoverageDelta    *float64           `json:"ri_coverage_delta,omitempty"`
	SPCoverageDelta    *float64           `json:"sp_coverage_delta,omitempty"`
	CreditsDelta       *float64           `json:"credits_delta,omitempty"`
	RefundsDelta       *float64           `json:"refunds_delta,omitempty"`
	FeesDelta          *float64           `json:"fees_delta,omitempty"`
	MarketplaceDelta   *float64           `json:"marketplace_delta,omitempty"`
	DataTransferDelta  *float64           `json:"data_transfer_delta,omitempty"`
	K8sNamespaceDeltas map[string]float64 `json:"k8s_namespace_deltas,omitempty"`
}

// TriageResult is the classifier output: exactly one category per run,
// severity derived from the raw dollar delta, confidence in [0,1].
type TriageResult struct {
	Category   AnomalyCategory `json:"category"`
	Severity   AnomalySeverity `json:"severity"`
	Confidence float64         `json:"confidence"`
	Summary    string          `json:"summary"`
	Evidence   TriageEvidence  `json:"evidence"`
}
