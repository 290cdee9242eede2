// Package collectorconfig generates Vector/Telegraf-style config
// fragments from MetricDefinitions, the pure, testable half of the
// original MetricCollectorManager (mod.rs) — the subprocess launcher
// that ran the generated binaries stays out of scope.
package collectorconfig

import (
	"fmt"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

type vectorSink struct {
	Type          string   `toml:"type"`
	Inputs        []string `toml:"inputs"`
	URI           string   `toml:"uri"`
	Method        string   `toml:"method"`
	Compression   string   `toml:"compression"`
	PayloadPrefix string   `toml:"payload_prefix"`
	PayloadSuffix string   `toml:"payload_suffix"`
}

type vectorRoot struct {
	Sources map[string]map[string]any `toml:"sources,omitempty"`
	Sinks   map[string]vectorSink     `toml:"sinks,omitempty"`
}

// GenerateVectorConfig builds a Vector config fragment wiring every
// "vector"-collector MetricDefinition's metadata into a source and an
// HTTP sink that posts to receiverURL with metric_id/collector query
// params, mirroring save_metric_definitions_to_vector_config's output
// shape.
func GenerateVectorConfig(defs []planning.MetricDefinition, receiverURL string) (string, error) {
	root := vectorRoot{
		Sources: make(map[string]map[string]any),
		Sinks:   make(map[string]vectorSink),
	}

	for _, d := range defs {
		if d.Collector != "vector" {
			continue
		}

		source := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			if k == "sinks" {
				continue
			}
			source[k] = v
		}
		root.Sources[d.ID] = source

		root.Sinks["output_"+d.ID] = vectorSink{
			Type:          "http",
			Inputs:        []string{d.ID},
			URI:           fmt.Sprintf("%s?metric_id=%s&collector=vector", receiverURL, d.ID),
			Method:        "post",
			Compression:   "gzip",
			PayloadPrefix: `{"metrics": `,
			PayloadSuffix: `}`,
		}
	}

	out, err := toml.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("marshal vector config: %w", err)
	}
	return string(out), nil
}

type telegrafInput struct {
	URLs   []string `toml:"urls"`
	Method string   `toml:"method"`
}

type telegrafRoot struct {
	Inputs map[string][]telegrafInput `toml:"inputs,omitempty"`
}

// GenerateTelegrafConfig builds a Telegraf config fragment for every
// "telegraf"-collector MetricDefinition, each input posting samples to
// receiverURL tagged with its metric_id.
func GenerateTelegrafConfig(defs []planning.MetricDefinition, receiverURL string) (string, error) {
	filtered := make([]planning.MetricDefinition, 0, len(defs))
	for _, d := range defs {
		if d.Collector == "telegraf" {
			filtered = append(filtered, d)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })

	root := telegrafRoot{Inputs: make(map[string][]telegrafInput)}
	for _, d := range filtered {
		kind, _ := d.Metadata["kind"].(string)
		if kind == "" {
			kind = d.Kind
		}
		root.Inputs[kind] = append(root.Inputs[kind], telegrafInput{
			URLs:   []string{fmt.Sprintf("%s?metric_id=%s&collector=telegraf", receiverURL, d.ID)},
			Method: "POST",
		})
	}

	out, err := toml.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("marshal telegraf config: %w", err)
	}
	return string(out), nil
}
