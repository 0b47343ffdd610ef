package continuum

import (
	"crypto/ed25519"
)

// MetricSummary aggregates one named metric across a manifest sequence.
type MetricSummary struct {
	Samples int64   `json:"samples"`
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
	Average float64 `json:"average"`
	Total   float64 `json:"total"`
}

// LineageReport is the aggregate analysis over an ordered manifest
// sequence: counts, time bounds, per-metric statistics, continuity, and
// signature validity. Violations are collected into lists rather than
// raised, so callers can decide their own response to a degraded chain.
type LineageReport struct {
	EpochCount      int                      `json:"epoch_count"`
	EarliestStartMS int64                    `json:"earliest_start_ms"`
	LatestEndMS     int64                    `json:"latest_end_ms"`
	TotalDurationMS int64                    `json:"total_duration_ms"`
	Metrics         map[string]MetricSummary `json:"metrics"`

	// IsLinear is true when every manifest's parent id equals the
	// preceding manifest's epoch id and the first manifest has an empty
	// parent id. Each violation is recorded in LineageBreaks as
	// "genesis-><id>" or "<prev>-><id>".
	IsLinear      bool     `json:"is_linear"`
	LineageBreaks []string `json:"lineage_breaks"`

	// SignaturesValid is true when every manifest verifies against the
	// analysis key. With no key available it is false (indeterminate)
	// and no individual failures are attributed.
	SignaturesValid   bool     `json:"signatures_valid"`
	SignatureFailures []string `json:"signature_failures"`
}

// AnalyzeLineage walks manifest history oldest-first and computes the
// lineage report. A positive limit restricts the walk to the most recent
// manifests. Signatures are checked against pubOverride when supplied,
// otherwise against the current identity's public key - after a rotation,
// pass the archived pre-rotation key to verify older history.
func (ct *Continuum) AnalyzeLineage(limit int, pubOverride ed25519.PublicKey) LineageReport {
	report := LineageReport{
		Metrics:         map[string]MetricSummary{},
		IsLinear:        true,
		SignaturesValid: true,
	}

	manifests := ct.History(limit)
	if len(manifests) == 0 {
		return report
	}

	report.EpochCount = len(manifests)
	report.EarliestStartMS = manifests[0].StartMS
	report.LatestEndMS = manifests[0].EndMS

	key := pubOverride
	if len(key) == 0 {
		key = ct.id.PublicKey()
	}
	haveKey := len(key) == ed25519.PublicKeySize
	if !haveKey {
		report.SignaturesValid = false
	}

	var previous *EpochManifest
	for i := range manifests {
		m := &manifests[i]

		if m.StartMS < report.EarliestStartMS {
			report.EarliestStartMS = m.StartMS
		}
		if m.EndMS > report.LatestEndMS {
			report.LatestEndMS = m.EndMS
		}

		if previous != nil {
			if m.ParentID != previous.EpochID {
				report.IsLinear = false
				report.LineageBreaks = append(report.LineageBreaks,
					previous.EpochID+"->"+m.EpochID)
			}
		} else if m.ParentID != "" {
			report.IsLinear = false
			report.LineageBreaks = append(report.LineageBreaks,
				"genesis->"+m.EpochID)
		}

		if haveKey && !VerifyManifest(*m, key) {
			report.SignaturesValid = false
			report.SignatureFailures = append(report.SignatureFailures, m.EpochID)
		}

		// A malformed epoch whose end precedes its start contributes
		// nothing to the cumulative duration.
		if m.EndMS >= m.StartMS {
			report.TotalDurationMS += m.EndMS - m.StartMS
		}

		for name, value := range m.Metrics {
			summary := report.Metrics[name]
			summary.Samples++
			summary.Total += value
			if summary.Samples == 1 {
				summary.Minimum = value
				summary.Maximum = value
			} else {
				summary.Minimum = min(summary.Minimum, value)
				summary.Maximum = max(summary.Maximum, value)
			}
			summary.Average = summary.Total / float64(summary.Samples)
			report.Metrics[name] = summary
		}

		previous = m
	}

	return report
}
