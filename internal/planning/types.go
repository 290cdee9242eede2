// Package planning holds the definition types the controller reloads from
// the data layer: metrics, scaling components, and scaling plans.
package planning

import "time"

// MetricDefinition identifies an external collector process and the shape
// of the samples it emits. Immutable once admitted; the controller never
// interprets Metadata beyond handing it to the collector-config generator.
type MetricDefinition struct {
	ID        string         `yaml:"id" json:"id"`
	Collector string         `yaml:"collector" json:"collector"`
	Kind      string         `yaml:"kind" json:"kind"`
	Metadata  map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// MetricSample is one value emitted by a collector. Samples are ordered by
// arrival into MetricBuffer, not necessarily by Timestamp.
type MetricSample struct {
	MetricID  string            `yaml:"metric_id" json:"metric_id"`
	Timestamp time.Time         `yaml:"timestamp" json:"timestamp"`
	Value     float64           `yaml:"value" json:"value"`
	Tags      map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// ScalingComponent names an external scaling target. Kind selects the
// adapter; Metadata is adapter-specific and validated at admission.
type ScalingComponent struct {
	ID       string         `yaml:"id" json:"id"`
	Kind     string         `yaml:"kind" json:"kind"`
	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ScalingComponentRef is one entry in a PlanRule's scaling_components list:
// which component to dispatch to and the parameters to dispatch with.
type ScalingComponentRef struct {
	ComponentID  string         `yaml:"component_id" json:"component_id"`
	ActionParams map[string]any `yaml:"action_params,omitempty" json:"action_params,omitempty"`
}

// PlanRule is one expression plus the component-action group it triggers
// when the expression evaluates true.
type PlanRule struct {
	ID                string                `yaml:"id" json:"id"`
	Expression        string                `yaml:"expression" json:"expression"`
	Priority          int                   `yaml:"priority" json:"priority"`
	ScalingComponents []ScalingComponentRef `yaml:"scaling_components,omitempty" json:"scaling_components,omitempty"`
}

// ScalingPlan is a set of prioritized rules evaluated on a fixed interval
// against a fixed set of metrics, gated by a cooldown.
type ScalingPlan struct {
	ID         string     `yaml:"id" json:"id"`
	MetricIDs  []string   `yaml:"metric_ids,omitempty" json:"metric_ids,omitempty"`
	IntervalMs int64      `yaml:"interval_ms" json:"interval_ms"`
	CooldownMs int64      `yaml:"cooldown_ms" json:"cooldown_ms"`
	Plans      []PlanRule `yaml:"plans,omitempty" json:"plans,omitempty"`
}
