// Package triage classifies cost anomalies with a fixed, priority-ordered
// cascade of deterministic evidence rules. The first matching rule wins; no
// model inference is involved anywhere in this path.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/costdesk/costdesk/pkg/evidence"
	"github.com/costdesk/costdesk/pkg/models"
)

// SeverityFromDelta maps a daily dollar delta to an anomaly severity level.
func SeverityFromDelta(deltaDollarsDaily float64) models.AnomalySeverity {
	switch {
	case deltaDollarsDaily >= 5000:
		return models.SeverityCritical
	case deltaDollarsDaily >= 1000:
		return models.SeverityHigh
	case deltaDollarsDaily >= 200:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// PctChange computes the fractional change from oldVal to newVal. A zero
// oldVal yields 1.0 when newVal is nonzero and 0.0 otherwise.
func PctChange(newVal, oldVal float64) float64 {
	if oldVal == 0 {
		if newVal != 0 {
			return 1.0
		}

		return 0.0
	}

	return (newVal - oldVal) / oldVal
}

func float64Ptr(v float64) *float64 {
	return &v
}

// Classifier runs the triage cascade against the configured evidence
// sources. KubeCost may be nil; the allocation rule is skipped then.
type Classifier struct {
	cost     evidence.CostSource
	infra    evidence.InfraSource
	kubecost evidence.KubeCostSource
	logger   *slog.Logger
}

// NewClassifier creates a Classifier. A nil kubecost disables the namespace
// allocation rule.
func NewClassifier(cost evidence.CostSource, infra evidence.InfraSource, kubecost evidence.KubeCostSource, logger *slog.Logger) *Classifier {
	return &Classifier{
		cost:     cost,
		infra:    infra,
		kubecost: kubecost,
		logger:   logger.With("module", "triage"),
	}
}

// caseFile accumulates everything one classification run touches: the
// anomaly, the match threshold, collected evidence, and the CUR rows shared
// by several rules.
type caseFile struct {
	anomaly     models.CostAnomaly
	windowStart string
	windowEnd   string
	severity    models.AnomalySeverity
	threshold   float64

	evidence models.TriageEvidence

	curFetched bool
	curFailed  bool
	curItems   []evidence.CURLineItem
}

// rule is one cascade step. A nil result means no match; the cascade moves
// to the next rule.
type rule struct {
	name string
	eval func(ctx context.Context, cf *caseFile) *models.TriageResult
}

// cascade returns the rules in priority order. The order is part of the
// classifier's contract: reordering changes which category wins when several
// signals exceed their thresholds.
func (c *Classifier) cascade() []rule {
	return []rule{
		{name: "commitment_coverage_drift", eval: c.commitmentCoverage},
		{name: "credits_refunds_fees", eval: c.creditsRefundsFees},
		{name: "marketplace", eval: c.marketplace},
		{name: "data_transfer", eval: c.dataTransfer},
		{name: "k8s_cost_shift", eval: c.namespaceShift},
		{name: "deploy_related", eval: c.deployCorrelation},
		{name: "expected_growth", eval: c.expectedGrowth},
	}
}

// Classify runs the cascade and always produces a result. Evidence sources
// that fail are logged and treated as having produced no signal, so a flaky
// backend degrades classification to a lower-priority category or unknown
// instead of aborting the run.
func (c *Classifier) Classify(ctx context.Context, anomaly models.CostAnomaly, windowStart, windowEnd string) models.TriageResult {
	cf := &caseFile{
		anomaly:     anomaly,
		windowStart: windowStart,
		windowEnd:   windowEnd,
		severity:    SeverityFromDelta(anomaly.DeltaDollars),
		threshold:   0.2 * math.Max(anomaly.DeltaDollars, 1.0),
		evidence: models.TriageEvidence{
			K8sNamespaceDeltas: make(map[string]float64),
		},
	}

	for _, r := range c.cascade() {
		result := r.eval(ctx, cf)
		if result == nil {
			continue
		}

		c.logger.Info("Triage rule matched",
			"rule", r.name,
			"anomaly_id", anomaly.AnomalyID,
			"category", result.Category,
			"confidence", result.Confidence)

		return *result
	}

	return models.TriageResult{
		Category:   models.CategoryUnknown,
		Severity:   cf.severity,
		Confidence: 0.4,
		Summary:    "no strong deterministic signal; requires deeper analysis",
		Evidence:   cf.evidence,
	}
}

func (cf *caseFile) result(category models.AnomalyCategory, confidence float64, summary string) *models.TriageResult {
	return &models.TriageResult{
		Category:   category,
		Severity:   cf.severity,
		Confidence: confidence,
		Summary:    summary,
		Evidence:   cf.evidence,
	}
}

// cur fetches the CUR rows once per classification; later rules reuse them.
func (c *Classifier) cur(ctx context.Context, cf *caseFile) []evidence.CURLineItem {
	if cf.curFetched {
		return cf.curItems
	}

	cf.curFetched = true

	items, err := c.cost.CURLineItems(ctx, cf.anomaly.AccountID, cf.windowStart, cf.windowEnd, cf.anomaly.Service)
	if err != nil {
		c.logger.Warn("CUR line items unavailable", "anomaly_id", cf.anomaly.AnomalyID, "error", err)
		cf.curFailed = true

		return nil
	}

	cf.curItems = items

	return items
}

func (c *Classifier) commitmentCoverage(ctx context.Context, cf *caseFile) *models.TriageResult {
	var (
		wg           sync.WaitGroup
		riCov, spCov evidence.Coverage
		riErr, spErr error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		riCov, riErr = c.cost.RICoverage(ctx, cf.anomaly.AccountID, cf.windowStart, cf.windowEnd)
	}()

	go func() {
		defer wg.Done()
		spCov, spErr = c.cost.SPCoverage(ctx, cf.anomaly.AccountID, cf.windowStart, cf.windowEnd)
	}()

	wg.Wait()

	if riErr != nil {
		c.logger.Warn("RI coverage unavailable", "anomaly_id", cf.anomaly.AnomalyID, "error", riErr)
	} else {
		cf.evidence.RICoverageDelta = float64Ptr(riCov.CoverageDelta)
	}

	if spErr != nil {
		c.logger.Warn("SP coverage unavailable", "anomaly_id", cf.anomaly.AnomalyID, "error", spErr)
	} else {
		cf.evidence.SPCoverageDelta = float64Ptr(spCov.CoverageDelta)
	}

	riShift := riErr == nil && math.Abs(riCov.CoverageDelta) >= 0.05
	spShift := spErr == nil && math.Abs(spCov.CoverageDelta) >= 0.05

	if riShift || spShift {
		return cf.result(models.CategoryCommitmentCoverageDrift, 0.8,
			"ri/sp coverage shifted materially; investigate commitment coverage/utilization")
	}

	return nil
}

func (c *Classifier) creditsRefundsFees(ctx context.Context, cf *caseFile) *models.TriageResult {
	var credits, refunds, fees float64

	for _, item := range c.cur(ctx, cf) {
		amount := item.UnblendedCost

		switch strings.ToLower(item.LineItemType) {
		case "credit":
			credits += amount
		case "refund":
			refunds += amount
		case "fee", "rifee":
			fees += amount
		}
	}

	if cf.curFailed {
		return nil
	}

	cf.evidence.CreditsDelta = float64Ptr(credits)
	cf.evidence.RefundsDelta = float64Ptr(refunds)
	cf.evidence.FeesDelta = float64Ptr(fees)

	if math.Abs(credits) >= cf.threshold || math.Abs(refunds) >= cf.threshold {
		return cf.result(models.CategoryCreditsRefundsFees, 0.75,
			"net spend change driven by credits/refunds/fees movement (not usage)")
	}

	return nil
}

func (c *Classifier) marketplace(ctx context.Context, cf *caseFile) *models.TriageResult {
	var mp float64

	for _, item := range c.cur(ctx, cf) {
		name := strings.ToLower(item.ProductName)
		code := strings.ToLower(item.ProductCode)

		if strings.Contains(name, "marketplace") || strings.Contains(code, "aws marketplace") {
			mp += item.UnblendedCost
		}
	}

	if cf.curFailed {
		return nil
	}

	cf.evidence.MarketplaceDelta = float64Ptr(mp)

	if mp >= cf.threshold {
		return cf.result(models.CategoryMarketplace, 0.8,
			"spend appears dominated by marketplace charges (subscription/usage)")
	}

	return nil
}

func (c *Classifier) dataTransfer(ctx context.Context, cf *caseFile) *models.TriageResult {
	var dt float64

	for _, item := range c.cur(ctx, cf) {
		if strings.Contains(strings.ToLower(item.UsageType), "datatransfer") {
			dt += item.UnblendedCost
		}
	}

	if cf.curFailed {
		return nil
	}

	cf.evidence.DataTransferDelta = float64Ptr(dt)

	if dt >= cf.threshold {
		return cf.result(models.CategoryDataTransfer, 0.85,
			"spike primarily in data transfer usage types")
	}

	return nil
}

func (c *Classifier) namespaceShift(ctx context.Context, cf *caseFile) *models.TriageResult {
	if c.kubecost == nil {
		return nil
	}

	alloc, err := c.kubecost.Allocation(ctx, "24h", "namespace")
	if err != nil {
		c.logger.Warn("KubeCost allocation unavailable", "anomaly_id", cf.anomaly.AnomalyID, "error", err)

		return nil
	}

	var maxDelta float64

	for ns, a := range alloc.Allocations {
		if a.Delta == nil {
			continue
		}

		cf.evidence.K8sNamespaceDeltas[ns] = *a.Delta

		if *a.Delta > maxDelta {
			maxDelta = *a.Delta
		}
	}

	if len(cf.evidence.K8sNamespaceDeltas) > 0 && maxDelta >= cf.threshold {
		return cf.result(models.CategoryK8sCostShift, 0.7,
			"k8s namespace allocation shifted materially (kubecost)")
	}

	return nil
}

func (c *Classifier) deployCorrelation(ctx context.Context, cf *caseFile) *models.TriageResult {
	deploys, err := c.infra.RecentDeploys(ctx, cf.anomaly.Service)
	if err != nil {
		c.logger.Warn("Deploy history unavailable", "anomaly_id", cf.anomaly.AnomalyID, "error", err)

		return nil
	}

	if len(deploys) == 0 {
		return nil
	}

	ids := make([]string, 0, len(deploys))
	for _, d := range deploys {
		id := d.ID
		if id == "" {
			id = "deploy"
		}

		ids = append(ids, id)
	}

	cf.evidence.DeployCorrelation = ids

	return cf.result(models.CategoryDeployRelated, 0.7,
		"recent deploys detected near anomaly window")
}

func (c *Classifier) expectedGrowth(ctx context.Context, cf *caseFile) *models.TriageResult {
	window, err := c.infra.Metrics(ctx, cf.anomaly.Service, "Requests", "Service")
	if err != nil {
		c.logger.Warn("Usage metrics unavailable", "anomaly_id", cf.anomaly.AnomalyID, "error", err)

		return nil
	}

	usagePct := PctChange(window.Current, window.Baseline)
	costPct := cf.anomaly.DeltaPercent / 100.0

	if window.Baseline > 0 && usagePct > 0 && math.Abs(usagePct-costPct) <= 0.15 {
		cf.evidence.UsageCorrelation = []string{
			fmt.Sprintf("usage pct ~%.2f vs cost pct ~%.2f", usagePct, costPct),
		}

		return cf.result(models.CategoryExpectedGrowth, 0.8,
			"usage increase roughly explains cost increase")
	}

	return nil
}
