package metrics

import (
	"errors"
	"math"
	"sort"

	"github.com/getsentry/cpuprof/internal/nodetree"
)

// FunctionsMetadata tracks the profiles a function was seen in.
type FunctionsMetadata struct {
	MaxVal   uint64
	WorstID  string
	Examples []string
}

// Aggregator merges the functions of several profiles to compute self time
// distributions per function.
type Aggregator struct {
	MaxUniqueFunctions uint
	MaxNumOfExamples   uint
	CallTreeFunctions  map[uint32]nodetree.CallTreeFunction
	FunctionsMetadata  map[uint32]FunctionsMetadata
}

type FunctionMetrics struct {
	Name        string   `json:"name"`
	Package     string   `json:"package"`
	Fingerprint uint64   `json:"fingerprint"`
	InApp       bool     `json:"in_app"`
	P50         uint64   `json:"p50"`
	P75         uint64   `json:"p75"`
	P95         uint64   `json:"p95"`
	P99         uint64   `json:"p99"`
	Max         uint64   `json:"max"`
	Avg         float64  `json:"avg"`
	Sum         uint64   `json:"sum"`
	Count       uint64   `json:"count"`
	Worst       string   `json:"worst"`
	Examples    []string `json:"examples"`
}

func NewAggregator(maxUniqueFunctions uint, maxNumOfExamples uint) Aggregator {
	return Aggregator{
		MaxUniqueFunctions: maxUniqueFunctions,
		MaxNumOfExamples:   maxNumOfExamples,
		CallTreeFunctions:  make(map[uint32]nodetree.CallTreeFunction),
		FunctionsMetadata:  make(map[uint32]FunctionsMetadata),
	}
}

// AddCallTrees collects the functions of the call trees of a profile.
func (ma *Aggregator) AddCallTrees(trees []*nodetree.Node, profileID string) {
	ma.AddFunctions(nodetree.CollectFunctions(trees), profileID)
}

func (ma *Aggregator) AddFunctions(functions []nodetree.CallTreeFunction, profileID string) {
	for _, f := range functions {
		fn, ok := ma.CallTreeFunctions[f.Fingerprint]
		if !ok {
			fn = f
			fn.SelfTimesNS = append([]uint64(nil), f.SelfTimesNS...)
			ma.CallTreeFunctions[f.Fingerprint] = fn
			ma.FunctionsMetadata[f.Fingerprint] = FunctionsMetadata{
				MaxVal:   f.SumSelfTimeNS,
				WorstID:  profileID,
				Examples: []string{profileID},
			}
			continue
		}
		fn.SampleCount += f.SampleCount
		fn.SelfTimesNS = append(fn.SelfTimesNS, f.SelfTimesNS...)
		fn.SumSelfTimeNS += f.SumSelfTimeNS
		ma.CallTreeFunctions[f.Fingerprint] = fn

		funcMetadata := ma.FunctionsMetadata[f.Fingerprint]
		if f.SumSelfTimeNS > funcMetadata.MaxVal {
			funcMetadata.MaxVal = f.SumSelfTimeNS
			funcMetadata.WorstID = profileID
		}
		if len(funcMetadata.Examples) < int(ma.MaxNumOfExamples) {
			funcMetadata.Examples = append(funcMetadata.Examples, profileID)
		}
		ma.FunctionsMetadata[f.Fingerprint] = funcMetadata
	}
}

// ToMetrics returns the metrics of the functions with the most self time,
// largest first.
func (ma *Aggregator) ToMetrics() []FunctionMetrics {
	metrics := make([]FunctionMetrics, 0, len(ma.CallTreeFunctions))

	for _, f := range ma.CallTreeFunctions {
		if len(f.SelfTimesNS) == 0 {
			continue
		}
		values := append([]uint64(nil), f.SelfTimesNS...)
		sort.Slice(values, func(i, j int) bool {
			return values[i] < values[j]
		})
		p50, _ := quantile(values, 0.50)
		p75, _ := quantile(values, 0.75)
		p95, _ := quantile(values, 0.95)
		p99, _ := quantile(values, 0.99)
		metadata := ma.FunctionsMetadata[f.Fingerprint]
		metrics = append(metrics, FunctionMetrics{
			Name:        f.Function,
			Package:     f.Package,
			Fingerprint: uint64(f.Fingerprint),
			InApp:       f.InApp,
			P50:         p50,
			P75:         p75,
			P95:         p95,
			P99:         p99,
			Max:         values[len(values)-1],
			Avg:         float64(f.SumSelfTimeNS) / float64(len(values)),
			Sum:         f.SumSelfTimeNS,
			Count:       uint64(f.SampleCount),
			Worst:       metadata.WorstID,
			Examples:    metadata.Examples,
		})
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Sum == metrics[j].Sum {
			return metrics[i].Fingerprint < metrics[j].Fingerprint
		}
		return metrics[i].Sum > metrics[j].Sum
	})
	if len(metrics) > int(ma.MaxUniqueFunctions) {
		metrics = metrics[:ma.MaxUniqueFunctions]
	}
	return metrics
}

// quantile expects sorted values.
func quantile(values []uint64, q float64) (uint64, error) {
	if len(values) == 0 {
		return 0, errors.New("cannot compute percentile from empty list")
	}
	if q <= 0 || q > 1 {
		return 0, errors.New("q must be a value between 0 and 1.0")
	}
	index := int(math.Ceil(float64(len(values))*q)) - 1
	return values[index], nil
}
