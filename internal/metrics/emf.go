// Package metrics emits CloudWatch Embedded Metric Format (EMF) documents.
// Each document is one JSON line on stdout; CloudWatch Logs extracts the
// metrics from the Lambda log stream, so no API call sits on the job path.
package metrics

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Namespace groups every metric the generator emits.
const Namespace = "QRBulkGenerator"

// CloudWatch metric units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
)

type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type directive struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Recorder accumulates one EMF document. It is not safe for concurrent use;
// create one per job.
type Recorder struct {
	out        io.Writer
	namespace  string
	dimensions map[string]string
	metrics    map[string]metricDef
	values     map[string]float64
	properties map[string]interface{}
}

// New returns a Recorder writing to stdout. The FunctionName dimension is
// added when running on Lambda.
func New() *Recorder {
	return NewWithWriter(os.Stdout, os.Getenv("AWS_LAMBDA_FUNCTION_NAME"))
}

// NewWithWriter returns a Recorder writing to out. An empty functionName
// omits the FunctionName dimension.
func NewWithWriter(out io.Writer, functionName string) *Recorder {
	r := &Recorder{
		out:        out,
		namespace:  Namespace,
		dimensions: make(map[string]string),
		metrics:    make(map[string]metricDef),
		values:     make(map[string]float64),
		properties: make(map[string]interface{}),
	}
	if functionName != "" {
		r.dimensions["FunctionName"] = functionName
	}
	return r
}

// Dimension adds a dimension key-value pair.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records a value with a CloudWatch unit.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: unit}
	r.values[name] = value
	return r
}

// Duration records d in milliseconds.
func (r *Recorder) Duration(name string, d time.Duration) *Recorder {
	return r.Metric(name, float64(d.Milliseconds()), UnitMilliseconds)
}

// Count records a count metric.
func (r *Recorder) Count(name string, n int) *Recorder {
	return r.Metric(name, float64(n), UnitCount)
}

// Property adds a searchable, non-metric field.
func (r *Recorder) Property(key string, value interface{}) *Recorder {
	r.properties[key] = value
	return r
}

// Flush writes the document as a single line. Nothing is written when no
// metric was recorded. The Recorder must not be reused afterwards.
func (r *Recorder) Flush() {
	if len(r.metrics) == 0 {
		return
	}

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]metricDef, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.metrics[name])
	}

	dimKeys := make([]string, 0, len(r.dimensions))
	for k := range r.dimensions {
		dimKeys = append(dimKeys, k)
	}
	sort.Strings(dimKeys)

	doc := make(map[string]interface{}, 1+len(r.dimensions)+len(r.values)+len(r.properties))
	for k, v := range r.properties {
		doc[k] = v
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	for k, v := range r.values {
		doc[k] = v
	}
	doc["_aws"] = directive{
		Timestamp: time.Now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.namespace,
			Dimensions: [][]string{dimKeys},
			Metrics:    defs,
		}},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal EMF document")
		return
	}
	data = append(data, '\n')
	if _, err := r.out.Write(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write EMF document")
	}
}
