// Package telemetry aggregates per-session latency samples and provider cost
// entries for tutoring sessions.
//
// The Recorder keeps everything in memory, partitioned by session id. Latency
// samples are appended per category; cost entries carry a provider name and a
// cost type that is either tagged explicitly by the caller or inferred from
// the provider name. All operations are safe for concurrent use.
package telemetry

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// Latency categories recorded by the session orchestrator. RecordLatency
// accepts arbitrary category strings; these are the ones dashboards key on.
const (
	CategorySTT     = "stt"      // end of user speech → final transcript
	CategoryLLMTTFT = "llm_ttft" // LLM request → first token
	CategoryTTSTTFB = "tts_ttfb" // TTS request → first audio byte
	CategoryTurn    = "turn"     // end of user speech → start of playback
)

// CostType classifies a cost entry by pipeline stage.
type CostType string

const (
	// CostUnknown leaves classification to the provider-name heuristic.
	CostUnknown CostType = ""

	CostSTT CostType = "stt"
	CostTTS CostType = "tts"
	CostLLM CostType = "llm"
)

// LatencyStats summarises the samples recorded for one session and category.
// All values are in milliseconds. A session/category with no samples yields
// the zero value.
type LatencyStats struct {
	Min     float64
	Max     float64
	Average float64
	Median  float64
	P99     float64
}

type costEntry struct {
	provider string
	amount   float64
	costType CostType
}

type sessionData struct {
	latencies map[string][]float64
	costs     []costEntry
}

// Recorder accumulates latency and cost telemetry per session.
// The zero value is not usable; construct with NewRecorder.
type Recorder struct {
	mu       sync.Mutex
	current  string
	sessions map[string]*sessionData
}

// NewRecorder returns an initialised Recorder with no sessions.
func NewRecorder() *Recorder {
	return &Recorder{
		sessions: make(map[string]*sessionData),
	}
}

// StartSession marks id as the current session and enables recording for it.
// Starting an already-known session simply makes it current again; existing
// samples are preserved.
func (r *Recorder) StartSession(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		r.sessions[id] = &sessionData{latencies: make(map[string][]float64)}
	}
	r.current = id
}

// EndSession clears the current session. Recorded data stays queryable until
// ClearSession.
func (r *Recorder) EndSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = ""
}

// RecordLatency appends a latency sample (in milliseconds) under the given
// category for the current session. A no-op when no session is current.
func (r *Recorder) RecordLatency(category string, ms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sd := r.sessions[r.current]
	if sd == nil {
		return
	}
	sd.latencies[category] = append(sd.latencies[category], ms)
}

// RecordCost appends a cost entry for the current session. When costType is
// CostUnknown the type is inferred from the provider name; providers that
// match no known fragment stay uncategorized but still count toward the total
// and the per-provider breakdown. A no-op when no session is current.
func (r *Recorder) RecordCost(provider string, amount float64, costType CostType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sd := r.sessions[r.current]
	if sd == nil {
		return
	}
	if costType == CostUnknown {
		costType = categorizeProvider(provider)
	}
	sd.costs = append(sd.costs, costEntry{provider: provider, amount: amount, costType: costType})
}

// GetLatencyStats summarises the samples for one session and category.
// Unknown sessions or empty categories yield the zero value.
func (r *Recorder) GetLatencyStats(sessionID, category string) LatencyStats {
	r.mu.Lock()
	samples := r.samplesLocked(category, sessionID)
	r.mu.Unlock()
	return summarise(samples)
}

// AggregateLatencyStats summarises samples for one category across several
// sessions. Unknown session ids contribute nothing.
func (r *Recorder) AggregateLatencyStats(category string, sessionIDs ...string) LatencyStats {
	r.mu.Lock()
	samples := r.samplesLocked(category, sessionIDs...)
	r.mu.Unlock()
	return summarise(samples)
}

// GetTotalCost returns the sum of all cost entries for the session, including
// uncategorized ones.
func (r *Recorder) GetTotalCost(sessionID string) float64 {
	return r.AggregateTotalCost(sessionID)
}

// AggregateTotalCost sums all cost entries across the given sessions.
func (r *Recorder) AggregateTotalCost(sessionIDs ...string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, id := range sessionIDs {
		if sd := r.sessions[id]; sd != nil {
			for _, c := range sd.costs {
				total += c.amount
			}
		}
	}
	return total
}

// GetCostBreakdownByType returns cost totals keyed by cost type.
// Uncategorized entries are excluded.
func (r *Recorder) GetCostBreakdownByType(sessionID string) map[CostType]float64 {
	return r.AggregateCostBreakdownByType(sessionID)
}

// AggregateCostBreakdownByType returns typed cost totals across sessions.
func (r *Recorder) AggregateCostBreakdownByType(sessionIDs ...string) map[CostType]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[CostType]float64)
	for _, id := range sessionIDs {
		if sd := r.sessions[id]; sd != nil {
			for _, c := range sd.costs {
				if c.costType == CostUnknown {
					continue
				}
				out[c.costType] += c.amount
			}
		}
	}
	return out
}

// GetCostBreakdownByProvider returns cost totals keyed by provider name.
func (r *Recorder) GetCostBreakdownByProvider(sessionID string) map[string]float64 {
	return r.AggregateCostBreakdownByProvider(sessionID)
}

// AggregateCostBreakdownByProvider returns per-provider cost totals across
// sessions.
func (r *Recorder) AggregateCostBreakdownByProvider(sessionIDs ...string) map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64)
	for _, id := range sessionIDs {
		if sd := r.sessions[id]; sd != nil {
			for _, c := range sd.costs {
				out[c.provider] += c.amount
			}
		}
	}
	return out
}

// ClearSession discards all recorded data for the session. Clearing the
// current session also disables further recording until the next
// StartSession.
func (r *Recorder) ClearSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	if r.current == sessionID {
		r.current = ""
	}
}

// samplesLocked copies all samples for category across the given sessions.
// Caller must hold r.mu.
func (r *Recorder) samplesLocked(category string, sessionIDs ...string) []float64 {
	var out []float64
	for _, id := range sessionIDs {
		if sd := r.sessions[id]; sd != nil {
			out = append(out, sd.latencies[category]...)
		}
	}
	return out
}

// summarise computes stats over a copied sample slice.
//
// P99 is the value at ascending rank ceil(0.99 * N), 1-indexed, clamped to
// the last element. The median of an even-sized set is the mean of the two
// middle elements.
func summarise(samples []float64) LatencyStats {
	n := len(samples)
	if n == 0 {
		return LatencyStats{}
	}
	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	rank := int(math.Ceil(0.99 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}

	return LatencyStats{
		Min:     sorted[0],
		Max:     sorted[n-1],
		Average: sum / float64(n),
		Median:  median,
		P99:     sorted[rank-1],
	}
}

// Known provider name fragments per pipeline stage. Matching is
// case-insensitive substring containment.
var providerFragments = map[CostType][]string{
	CostSTT: {"deepgram", "whisper"},
	CostTTS: {"elevenlabs", "coqui", "piper"},
	CostLLM: {"openai", "anthropic", "gemini", "groq", "mistral", "ollama", "deepseek"},
}

// categorizeProvider infers a cost type from the provider name.
func categorizeProvider(provider string) CostType {
	lower := strings.ToLower(provider)
	for _, ct := range []CostType{CostSTT, CostTTS, CostLLM} {
		for _, frag := range providerFragments[ct] {
			if strings.Contains(lower, frag) {
				return ct
			}
		}
	}
	return CostUnknown
}
