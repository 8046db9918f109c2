// Package stage records, per named pipeline stage, whether it has started and
// finished, persisting every transition so a restarted process can resume at
// the first unfinished stage.
package stage

import (
	"fmt"

	"github.com/agenthands/snowball/internal/core/common"
)

type Name string

const (
	Gen1Crawl          Name = "gen1_crawl"
	Gen2Crawl          Name = "gen2_crawl"
	GraphAssembly      Name = "graph_assembly"
	MetadataEnrichment Name = "metadata_enrichment"
	GraphFinalize      Name = "graph_finalize"
)

// Order lists the stages in execution order.
var Order = []Name{Gen1Crawl, Gen2Crawl, GraphAssembly, MetadataEnrichment, GraphFinalize}

type Status struct {
	Started  bool `json:"started"`
	Finished bool `json:"finished"`
}

// Tracker is the persisted state machine NotStarted -> Started -> Finished
// for each stage. Transitions never roll back.
type Tracker struct {
	path   string
	status map[Name]Status
}

// Load reads the status file at path, or initialises every stage to
// not-started when the file does not exist yet.
func Load(path string) (*Tracker, error) {
	t := &Tracker{path: path, status: make(map[Name]Status, len(Order))}
	for _, n := range Order {
		t.status[n] = Status{}
	}
	if !common.Exists(path) {
		return t, nil
	}

	stored, err := common.ReadJSONFile[map[Name]Status](path)
	if err != nil {
		return nil, err
	}
	for n, s := range stored {
		if _, ok := t.status[n]; !ok {
			return nil, fmt.Errorf("unknown stage %q in status file: %w", n, common.ErrMalformedInput)
		}
		if s.Finished && !s.Started {
			return nil, fmt.Errorf("stage %q finished without starting: %w", n, common.ErrMalformedInput)
		}
		t.status[n] = s
	}
	return t, nil
}

func (t *Tracker) Status(n Name) Status { return t.status[n] }
func (t *Tracker) Started(n Name) bool  { return t.status[n].Started }
func (t *Tracker) Finished(n Name) bool { return t.status[n].Finished }

// Snapshot returns a copy of the status of every stage.
func (t *Tracker) Snapshot() map[Name]Status {
	out := make(map[Name]Status, len(t.status))
	for n, s := range t.status {
		out[n] = s
	}
	return out
}

// MarkStarted records that n has started. It is a no-op when already started.
func (t *Tracker) MarkStarted(n Name) error {
	s, ok := t.status[n]
	if !ok {
		return fmt.Errorf("unknown stage %q", n)
	}
	if s.Started {
		return nil
	}
	s.Started = true
	t.status[n] = s
	return t.save()
}

// MarkFinished records that n has finished, implying started. It is a no-op
// when already finished.
func (t *Tracker) MarkFinished(n Name) error {
	s, ok := t.status[n]
	if !ok {
		return fmt.Errorf("unknown stage %q", n)
	}
	if s.Finished {
		return nil
	}
	s.Started = true
	s.Finished = true
	t.status[n] = s
	return t.save()
}

// Next returns the first stage that has not finished, and false when every
// stage is finished.
func (t *Tracker) Next() (Name, bool) {
	for _, n := range Order {
		if !t.status[n].Finished {
			return n, true
		}
	}
	return "", false
}

func (t *Tracker) save() error {
	return common.WriteJSONFile(t.path, t.status)
}
