// Package awsce implements evidence.CostSource on the AWS Cost Explorer API.
// CUR line items are approximated from GetCostAndUsage groupings; a billing
// deployment with an Athena-backed CUR table can swap in a richer source.
package awsce

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"

	"github.com/costdesk/costdesk/pkg/evidence"
)

// API is the subset of the Cost Explorer client this package calls.
type API interface {
	GetCostAndUsage(ctx context.Context, params *ce.GetCostAndUsageInput, optFns ...func(*ce.Options)) (*ce.GetCostAndUsageOutput, error)
	GetReservationCoverage(ctx context.Context, params *ce.GetReservationCoverageInput, optFns ...func(*ce.Options)) (*ce.GetReservationCoverageOutput, error)
	GetReservationUtilization(ctx context.Context, params *ce.GetReservationUtilizationInput, optFns ...func(*ce.Options)) (*ce.GetReservationUtilizationOutput, error)
	GetSavingsPlansCoverage(ctx context.Context, params *ce.GetSavingsPlansCoverageInput, optFns ...func(*ce.Options)) (*ce.GetSavingsPlansCoverageOutput, error)
	GetSavingsPlansUtilization(ctx context.Context, params *ce.GetSavingsPlansUtilizationInput, optFns ...func(*ce.Options)) (*ce.GetSavingsPlansUtilizationOutput, error)
}

// Client implements evidence.CostSource against Cost Explorer.
type Client struct {
	api API
}

// New creates a Client from an AWS config.
func New(cfg aws.Config) *Client {
	return &Client{api: ce.NewFromConfig(cfg)}
}

// NewFromAPI creates a Client from an explicit API implementation.
func NewFromAPI(api API) *Client {
	return &Client{api: api}
}

func accountAndService(accountID, service string) *cetypes.Expression {
	return &cetypes.Expression{
		And: []cetypes.Expression{
			{Dimensions: &cetypes.DimensionValues{
				Key:    cetypes.DimensionLinkedAccount,
				Values: []string{accountID},
			}},
			{Dimensions: &cetypes.DimensionValues{
				Key:    cetypes.DimensionService,
				Values: []string{service},
			}},
		},
	}
}

func accountOnly(accountID string) *cetypes.Expression {
	return &cetypes.Expression{
		Dimensions: &cetypes.DimensionValues{
			Key:    cetypes.DimensionLinkedAccount,
			Values: []string{accountID},
		},
	}
}

func parseAmount(s *string) float64 {
	if s == nil {
		return 0
	}

	v, _ := strconv.ParseFloat(*s, 64)

	return v
}

// CostTimeseries returns daily unblended cost for a service/account window.
// ObservedSavingsDaily is first-day minus last-day cost; positive means
// spend went down over the window.
func (c *Client) CostTimeseries(ctx context.Context, service, accountID, startDate, endDate string) (evidence.CostTimeseries, error) {
	out, err := c.api.GetCostAndUsage(ctx, &ce.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
		Filter:      accountAndService(accountID, service),
	})
	if err != nil {
		return evidence.CostTimeseries{}, fmt.Errorf("costexplorer: get cost timeseries: %w", err)
	}

	var ts evidence.CostTimeseries

	var first, last float64

	for i, r := range out.ResultsByTime {
		var amount float64
		if m, ok := r.Total["UnblendedCost"]; ok {
			amount = parseAmount(m.Amount)
		}

		point := evidence.CostPoint{Amount: amount}
		if r.TimePeriod != nil && r.TimePeriod.Start != nil {
			point.Date = *r.TimePeriod.Start
		}

		ts.Points = append(ts.Points, point)

		if i == 0 {
			first = amount
		}

		last = amount
	}

	if len(ts.Points) >= 2 {
		ts.ObservedSavingsDaily = first - last
	}

	return ts, nil
}

// CURLineItems approximates CUR rows by grouping cost and usage by record
// type and usage type. Product name is not available at this granularity;
// product code carries the service filter instead.
func (c *Client) CURLineItems(ctx context.Context, accountID, startDate, endDate, service string) ([]evidence.CURLineItem, error) {
	out, err := c.api.GetCostAndUsage(ctx, &ce.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Granularity: cetypes.GranularityMonthly,
		Metrics:     []string{"UnblendedCost"},
		Filter:      accountAndService(accountID, service),
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("RECORD_TYPE")},
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("USAGE_TYPE")},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("costexplorer: get cur line items: %w", err)
	}

	var items []evidence.CURLineItem

	for _, r := range out.ResultsByTime {
		for _, g := range r.Groups {
			item := evidence.CURLineItem{ProductCode: service}

			if len(g.Keys) > 0 {
				item.LineItemType = g.Keys[0]
			}

			if len(g.Keys) > 1 {
				item.UsageType = g.Keys[1]
			}

			if m, ok := g.Metrics["UnblendedCost"]; ok {
				item.UnblendedCost = parseAmount(m.Amount)
			}

			items = append(items, item)
		}
	}

	return items, nil
}

// RICoverage returns reservation coverage over the window. The delta is
// last-day coverage minus first-day coverage, as a fraction.
func (c *Client) RICoverage(ctx context.Context, accountID, startDate, endDate string) (evidence.Coverage, error) {
	out, err := c.api.GetReservationCoverage(ctx, &ce.GetReservationCoverageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Filter:      accountOnly(accountID),
		Granularity: cetypes.GranularityDaily,
	})
	if err != nil {
		return evidence.Coverage{}, fmt.Errorf("costexplorer: get ri coverage: %w", err)
	}

	n := len(out.CoveragesByTime)
	if n == 0 {
		return evidence.Coverage{}, nil
	}

	first := riCoveragePercent(out.CoveragesByTime[0].Total)
	last := riCoveragePercent(out.CoveragesByTime[n-1].Total)

	cov := evidence.Coverage{CoveragePercent: last}
	if n >= 2 {
		cov.CoverageDelta = (last - first) / 100.0
	}

	return cov, nil
}

func riCoveragePercent(total *cetypes.Coverage) float64 {
	if total == nil || total.CoverageHours == nil {
		return 0
	}

	return parseAmount(total.CoverageHours.CoverageHoursPercentage)
}

// RIUtilization returns aggregate reservation utilization over the window.
func (c *Client) RIUtilization(ctx context.Context, accountID, startDate, endDate string) (evidence.Utilization, error) {
	out, err := c.api.GetReservationUtilization(ctx, &ce.GetReservationUtilizationInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Filter: accountOnly(accountID),
	})
	if err != nil {
		return evidence.Utilization{}, fmt.Errorf("costexplorer: get ri utilization: %w", err)
	}

	var u evidence.Utilization
	if out.Total != nil {
		u.UtilizationPercent = parseAmount(out.Total.UtilizationPercentage)
		u.UnusedCommitment = parseAmount(out.Total.UnusedHours)
	}

	return u, nil
}

// SPCoverage returns Savings Plans coverage over the window. The delta is
// last-day coverage minus first-day coverage, as a fraction.
func (c *Client) SPCoverage(ctx context.Context, accountID, startDate, endDate string) (evidence.Coverage, error) {
	out, err := c.api.GetSavingsPlansCoverage(ctx, &ce.GetSavingsPlansCoverageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Filter:      accountOnly(accountID),
		Granularity: cetypes.GranularityDaily,
	})
	if err != nil {
		return evidence.Coverage{}, fmt.Errorf("costexplorer: get sp coverage: %w", err)
	}

	n := len(out.SavingsPlansCoverages)
	if n == 0 {
		return evidence.Coverage{}, nil
	}

	first := spCoveragePercent(out.SavingsPlansCoverages[0].Coverage)
	last := spCoveragePercent(out.SavingsPlansCoverages[n-1].Coverage)

	cov := evidence.Coverage{CoveragePercent: last}
	if n >= 2 {
		cov.CoverageDelta = (last - first) / 100.0
	}

	return cov, nil
}

func spCoveragePercent(data *cetypes.SavingsPlansCoverageData) float64 {
	if data == nil {
		return 0
	}

	return parseAmount(data.CoveragePercentage)
}

// SPUtilization returns aggregate Savings Plans utilization over the window.
func (c *Client) SPUtilization(ctx context.Context, accountID, startDate, endDate string) (evidence.Utilization, error) {
	out, err := c.api.GetSavingsPlansUtilization(ctx, &ce.GetSavingsPlansUtilizationInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Filter: accountOnly(accountID),
	})
	if err != nil {
		return evidence.Utilization{}, fmt.Errorf("costexplorer: get sp utilization: %w", err)
	}

	var u evidence.Utilization

	if out.Total != nil && out.Total.Utilization != nil {
		u.UtilizationPercent = parseAmount(out.Total.Utilization.UtilizationPercentage)
		u.UnusedCommitment = parseAmount(out.Total.Utilization.UnusedCommitment)
	}

	return u, nil
}
