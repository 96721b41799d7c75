package apply

import (
	"time"

	"github.com/fruitflybrain/neuroarch/internal/graph"
)

// ChunkReport describes one transaction the engine submitted.
type ChunkReport struct {
	Kind    Kind          `json:"kind"`
	Phase   Phase         `json:"phase"`
	Index   int           `json:"index"`
	Keys    []string      `json:"keys"`
	Elapsed time.Duration `json:"elapsed"`
}

// EdgeDescriptor identifies a created edge.
type EdgeDescriptor struct {
	ID    graph.EntityID `json:"id"`
	Class string         `json:"class"`
	Out   graph.EntityID `json:"out"`
	In    graph.EntityID `json:"in"`
}

// Report is the progress of one apply call. Chunks lists every committed
// chunk in commit order; those stay committed even when the call fails.
type Report struct {
	Kind   Kind          `json:"kind"`
	Chunks []ChunkReport `json:"chunks"`

	// Failed is the chunk whose transaction returned the error, if any.
	Failed *ChunkReport `json:"failed,omitempty"`

	// IDs maps the row key of every added node to its store identifier.
	IDs map[string]graph.EntityID `json:"ids,omitempty"`
	// Modified lists the node or edge keys whose mods committed.
	Modified []string `json:"modified,omitempty"`
	// Deleted lists the keys whose deletions committed.
	Deleted []string `json:"deleted,omitempty"`
	// Edges describes every created edge.
	Edges []EdgeDescriptor `json:"edges,omitempty"`

	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
}

func newReport(kind Kind) *Report {
	return &Report{Kind: kind, IDs: map[string]graph.EntityID{}, Started: time.Now()}
}

// Committed counts the entries committed in phase.
func (r *Report) Committed(phase Phase) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, c := range r.Chunks {
		if c.Phase == phase {
			n += len(c.Keys)
		}
	}
	return n
}

// Complete reports whether the call finished without a failed chunk.
func (r *Report) Complete() bool {
	return r != nil && r.Failed == nil
}

// Summary is the compact form published to subscribers.
type Summary struct {
	Kind     Kind          `json:"kind"`
	Complete bool          `json:"complete"`
	Chunks   int           `json:"chunks"`
	Modified int           `json:"modified"`
	Added    int           `json:"added"`
	Deleted  int           `json:"deleted"`
	FailedAt *ChunkReport  `json:"failed_at,omitempty"`
	Started  time.Time     `json:"started"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Summarize condenses the report.
func (r *Report) Summarize() Summary {
	return Summary{
		Kind:     r.Kind,
		Complete: r.Complete(),
		Chunks:   len(r.Chunks),
		Modified: r.Committed(PhaseMod),
		Added:    r.Committed(PhaseAdd),
		Deleted:  r.Committed(PhaseDel),
		FailedAt: r.Failed,
		Started:  r.Started,
		Elapsed:  r.Elapsed,
	}
}
