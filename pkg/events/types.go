// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package events defines the wire schema for the core detection
// pipeline: telemetry observations, detected anomalies, the identifier
// newtypes used to key baselines and deduplication entries, and the
// closed enumerations shared across the detectors.
package events

import "encoding/json"

// ServiceId identifies the LLM-consuming service that produced a
// telemetry event. It is a distinct type from plain string so that
// BaselineKey and DeduplicationKey cannot be constructed by accident
// from an unrelated string.
type ServiceId string

// ModelId identifies the LLM model a request was served by, e.g. "gpt-4".
type ModelId string

// Metric names the statistic a BaselineKey tracks.
type Metric string

const (
	MetricLatencyMs   Metric = "latency_ms"
	MetricTotalTokens Metric = "total_tokens"
	MetricCostUSD     Metric = "cost_usd"
	MetricErrorRate   Metric = "error_rate"
)

// Severity is a totally ordered anomaly severity. The zero value is
// intentionally not a valid severity so that a forgotten assignment is
// caught by IsValid rather than silently reading as Low.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

var severityFromName = map[string]Severity{
	"low":      SeverityLow,
	"medium":   SeverityMedium,
	"high":     SeverityHigh,
	"critical": SeverityCritical,
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Severity) IsValid() bool {
	_, ok := severityNames[s]
	return ok
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := severityFromName[name]; ok {
		*s = v
		return nil
	}
	*s = SeverityUnknown
	return nil
}

// AnomalyType is a closed enumeration of anomaly kinds with a Custom
// escape hatch for detectors or collaborators outside the core.
type AnomalyType struct {
	kind   anomalyKind
	custom string
}

type anomalyKind int

const (
	anomalyKindLatencySpike anomalyKind = iota
	anomalyKindThroughputDegradation
	anomalyKindErrorRateIncrease
	anomalyKindTokenUsageSpike
	anomalyKindCostAnomaly
	anomalyKindInputDrift
	anomalyKindOutputDrift
	anomalyKindConceptDrift
	anomalyKindEmbeddingDrift
	anomalyKindHallucination
	anomalyKindQualityDegradation
	anomalyKindSecurityThreat
	anomalyKindCustom
)

var (
	AnomalyTypeLatencySpike           = AnomalyType{kind: anomalyKindLatencySpike}
	AnomalyTypeThroughputDegradation  = AnomalyType{kind: anomalyKindThroughputDegradation}
	AnomalyTypeErrorRateIncrease      = AnomalyType{kind: anomalyKindErrorRateIncrease}
	AnomalyTypeTokenUsageSpike        = AnomalyType{kind: anomalyKindTokenUsageSpike}
	AnomalyTypeCostAnomaly            = AnomalyType{kind: anomalyKindCostAnomaly}
	AnomalyTypeInputDrift             = AnomalyType{kind: anomalyKindInputDrift}
	AnomalyTypeOutputDrift            = AnomalyType{kind: anomalyKindOutputDrift}
	AnomalyTypeConceptDrift           = AnomalyType{kind: anomalyKindConceptDrift}
	AnomalyTypeEmbeddingDrift         = AnomalyType{kind: anomalyKindEmbeddingDrift}
	AnomalyTypeHallucination          = AnomalyType{kind: anomalyKindHallucination}
	AnomalyTypeQualityDegradation     = AnomalyType{kind: anomalyKindQualityDegradation}
	AnomalyTypeSecurityThreat         = AnomalyType{kind: anomalyKindSecurityThreat}
)

var anomalyTypeNames = map[anomalyKind]string{
	anomalyKindLatencySpike:          "latency_spike",
	anomalyKindThroughputDegradation: "throughput_degradation",
	anomalyKindErrorRateIncrease:     "error_rate_increase",
	anomalyKindTokenUsageSpike:       "token_usage_spike",
	anomalyKindCostAnomaly:           "cost_anomaly",
	anomalyKindInputDrift:            "input_drift",
	anomalyKindOutputDrift:           "output_drift",
	anomalyKindConceptDrift:          "concept_drift",
	anomalyKindEmbeddingDrift:        "embedding_drift",
	anomalyKindHallucination:         "hallucination",
	anomalyKindQualityDegradation:    "quality_degradation",
	anomalyKindSecurityThreat:        "security_threat",
}

var anomalyTypeFromName = func() map[string]AnomalyType {
	m := make(map[string]AnomalyType, len(anomalyTypeNames))
	for k, name := range anomalyTypeNames {
		m[name] = AnomalyType{kind: k}
	}
	return m
}()

// CustomAnomalyType constructs the Custom(name) escape-hatch variant.
func CustomAnomalyType(name string) AnomalyType {
	return AnomalyType{kind: anomalyKindCustom, custom: name}
}

func (a AnomalyType) String() string {
	if a.kind == anomalyKindCustom {
		return a.custom
	}
	if name, ok := anomalyTypeNames[a.kind]; ok {
		return name
	}
	return ""
}

func (a AnomalyType) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *AnomalyType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if t, ok := anomalyTypeFromName[name]; ok {
		*a = t
		return nil
	}
	*a = CustomAnomalyType(name)
	return nil
}

// DetectionMethod is a closed enumeration of the techniques that can
// raise an anomaly, with a Custom escape hatch analogous to AnomalyType.
type DetectionMethod struct {
	kind   methodKind
	custom string
}

type methodKind int

const (
	methodKindZScore methodKind = iota
	methodKindIQR
	methodKindMAD
	methodKindCUSUM
	methodKindCustom
)

var (
	DetectionMethodZScore = DetectionMethod{kind: methodKindZScore}
	DetectionMethodIQR    = DetectionMethod{kind: methodKindIQR}
	DetectionMethodMAD    = DetectionMethod{kind: methodKindMAD}
	DetectionMethodCUSUM  = DetectionMethod{kind: methodKindCUSUM}
)

var methodNames = map[methodKind]string{
	methodKindZScore: "z_score",
	methodKindIQR:    "iqr",
	methodKindMAD:    "mad",
	methodKindCUSUM:  "cusum",
}

var methodFromName = func() map[string]DetectionMethod {
	m := make(map[string]DetectionMethod, len(methodNames))
	for k, name := range methodNames {
		m[name] = DetectionMethod{kind: k}
	}
	return m
}()

func CustomDetectionMethod(name string) DetectionMethod {
	return DetectionMethod{kind: methodKindCustom, custom: name}
}

func (m DetectionMethod) String() string {
	if m.kind == methodKindCustom {
		return m.custom
	}
	if name, ok := methodNames[m.kind]; ok {
		return name
	}
	return ""
}

func (m DetectionMethod) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *DetectionMethod) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := methodFromName[name]; ok {
		*m = v
		return nil
	}
	*m = CustomDetectionMethod(name)
	return nil
}
