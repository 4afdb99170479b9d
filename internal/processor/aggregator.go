package processor

import (
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"resume-analyzer/internal/types"
)

// Finalize turns per-file outcomes into the response. With a query, successes are
// ranked by score (stable, so ties keep input order) and cut to topN; without one
// they are returned in input order.
func Finalize(requestID string, outcomes []types.FileOutcome, query string, retries, topN int) (types.RequestResult, error) {
	successes := make([]types.FileOutcome, 0, len(outcomes))
	var failed []string
	for _, o := range outcomes {
		if o.Success {
			successes = append(successes, o)
		} else {
			failed = append(failed, o.Filename)
		}
	}

	if len(successes) == 0 {
		return types.RequestResult{}, &TotalFailureError{
			RequestID:   requestID,
			FailedFiles: failed,
			Retries:     retries,
		}
	}

	if strings.TrimSpace(query) != "" {
		sort.SliceStable(successes, func(i, j int) bool {
			return CoerceScore(successes[i].Score) > CoerceScore(successes[j].Score)
		})
		if topN > 0 && len(successes) > topN {
			successes = successes[:topN]
		}
	}

	return types.RequestResult{RequestID: requestID, Results: successes}, nil
}

// CoerceScore converts a score to float64 for ranking. Anything that is not a number
// or a numeric string ranks as 0.
func CoerceScore(v any) float64 {
	switch s := v.(type) {
	case nil:
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) {
			return 0
		}
		return f
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		if f := rv.Float(); !math.IsNaN(f) {
			return f
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	}
	return 0
}
