package internaldefs

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/sessionfetch"
)

// CounterDef names one client counter.
type CounterDef struct {
	ID   sessionfetch.MetricID
	Name string
	Help string
}

// HistogramDef names one client histogram.
type HistogramDef struct {
	ID   sessionfetch.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: sessionfetch.MetricResolveFastPath, Name: "sessionfetch_resolve_fast_path_total", Help: "Resolutions served by the stored token without extra calls."},
	{ID: sessionfetch.MetricResolveSuccess, Name: "sessionfetch_resolve_success_total", Help: "Resolutions that produced a usable token."},
	{ID: sessionfetch.MetricResolveMissingSession, Name: "sessionfetch_resolve_missing_session_total", Help: "Resolutions without a stored session."},
	{ID: sessionfetch.MetricResolveMalformed, Name: "sessionfetch_resolve_malformed_total", Help: "Resolutions that ended with a malformed token."},
	{ID: sessionfetch.MetricResolveOversized, Name: "sessionfetch_resolve_oversized_total", Help: "Resolutions that ended with a token above the size limit."},
	{ID: sessionfetch.MetricRefreshSuccess, Name: "sessionfetch_refresh_success_total", Help: "Successful session refreshes."},
	{ID: sessionfetch.MetricRefreshFailure, Name: "sessionfetch_refresh_failure_total", Help: "Failed session refreshes."},
	{ID: sessionfetch.MetricRepairSuccess, Name: "sessionfetch_repair_success_total", Help: "Successful session repairs."},
	{ID: sessionfetch.MetricRepairFailure, Name: "sessionfetch_repair_failure_total", Help: "Failed session repairs."},
	{ID: sessionfetch.MetricFetchSent, Name: "sessionfetch_fetch_sent_total", Help: "Requests handed to the transport."},
	{ID: sessionfetch.MetricFetchAnonymous, Name: "sessionfetch_fetch_anonymous_total", Help: "Requests sent without a bearer token."},
	{ID: sessionfetch.MetricFetchUnauthenticated, Name: "sessionfetch_fetch_unauthenticated_total", Help: "Requests refused for lack of a usable token."},
}

var HistogramDefs = []HistogramDef{
	{ID: sessionfetch.MetricResolveLatency, Name: "sessionfetch_resolve_latency_seconds", Help: "ResolveAccessToken latency."},
}

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = len(sessionfetch.HistogramBounds) + 1

// HistogramBounds renders the finite bucket bounds followed by "+Inf".
func HistogramBounds() []string {
	out := make([]string, 0, BucketCount)
	for _, b := range sessionfetch.HistogramBounds {
		out = append(out, strconv.FormatFloat(b, 'f', -1, 64))
	}
	return append(out, "+Inf")
}

// HistogramBoundSuffix renders bounds for use inside instrument names.
func HistogramBoundSuffix() []string {
	bounds := HistogramBounds()
	out := make([]string, len(bounds))
	for i, b := range bounds {
		if b == "+Inf" {
			out[i] = "inf"
			continue
		}
		out[i] = strings.ReplaceAll(b, ".", "_")
	}
	return out
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
