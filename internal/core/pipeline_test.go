package core

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/snowball/internal/batch"
	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/core/dedupe"
	"github.com/agenthands/snowball/internal/core/model"
	"github.com/agenthands/snowball/internal/graphio"
	"github.com/agenthands/snowball/internal/stage"
	"github.com/agenthands/snowball/internal/workdir"
)

type fakeCoauthors struct {
	net    map[string][]string
	calls  map[string]int
	failOn map[string]bool
}

func newFakeCoauthors() *fakeCoauthors {
	return &fakeCoauthors{
		net: map[string][]string{
			"A": {"B", "C"},
			"D": {"C"},
			"B": {"A", "E"},
			"C": {"A", "D", "F"},
		},
		calls:  make(map[string]int),
		failOn: make(map[string]bool),
	}
}

// Fetch fails once for every id in failOn.
func (f *fakeCoauthors) Fetch(_ context.Context, sid string) ([]model.CoauthorPair, error) {
	f.calls[sid]++
	if f.failOn[sid] {
		delete(f.failOn, sid)
		return nil, errors.New("api down")
	}
	var out []model.CoauthorPair
	for _, co := range f.net[sid] {
		out = append(out, model.CoauthorPair{sid, co})
	}
	return out, nil
}

type fakeMetadata struct {
	calls map[string]int
}

func (f *fakeMetadata) Fetch(_ context.Context, sid string) ([]model.AuthorMetadata, error) {
	f.calls[sid]++
	switch sid {
	case "A":
		return []model.AuthorMetadata{{SID: "A", Surname: "Müller", Given: "Anna", Docs: 3, Areas: []string{"Physics"}, Affiliation: "ETH", Country: "CH"}}, nil
	case "B":
		return []model.AuthorMetadata{{SID: "B", Surname: "Muller", Given: "A.", Docs: 2, Areas: []string{"Physics", "Math"}, Affiliation: "MIT", Country: "US"}}, nil
	case "C":
		return []model.AuthorMetadata{{SID: "C", Surname: "Smith", Given: "J.", Docs: 9, Areas: []string{"Math"}}}, nil
	case "D":
		// The API resolved D to a different identifier.
		return []model.AuthorMetadata{{SID: "D9", Surname: "Jones"}}, nil
	}
	return nil, nil
}

type harness struct {
	wc        workdir.Context
	coauthors *fakeCoauthors
	metadata  *fakeMetadata
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	wc, err := workdir.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, common.WriteJSONFile(wc.Path(workdir.SeedsFile), []string{"A", "D"}))
	return &harness{
		wc:        wc,
		coauthors: newFakeCoauthors(),
		metadata:  &fakeMetadata{calls: make(map[string]int)},
	}
}

func (h *harness) pipeline(runLimit int) *Pipeline {
	return NewPipeline(h.wc, Fetchers{Coauthors: h.coauthors, Metadata: h.metadata}, Options{
		MaxDist: 1,
		Batch:   batch.Options{RunLimit: runLimit},
	})
}

// snapshot reads every file under root.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestPipeline_RunsAllStages(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline(0).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Stage: stage.GraphFinalize, Complete: true}, res)

	assert.Equal(t, map[string]int{"A": 1, "D": 1, "B": 1, "C": 1}, h.coauthors.calls)
	assert.Equal(t, map[string]int{"A": 1, "B": 1, "C": 1, "D": 1}, h.metadata.calls)

	gen2, err := common.ReadJSONFile[[]model.CoauthorPair](h.wc.Path(workdir.Gen2PairsFile))
	require.NoError(t, err)
	assert.Equal(t, model.CoauthorPair{"B", "A"}, gen2[0])

	retained, err := common.ReadJSONFile[[]string](h.wc.Path(workdir.RetainedFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, retained)

	g, err := graphio.LoadJSON(h.wc.NetPath("", "json"), model.AuthorSchema())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, g.Nodes())
	assert.Equal(t, [][2]string{{"A", "B"}, {"A", "C"}, {"C", "D"}}, g.Edges())
	surname, ok := g.Property("A", model.PropSurname)
	require.True(t, ok)
	s, _ := surname.Text()
	assert.Equal(t, "Müller", s)
	_, ok = g.Property("D", model.PropSurname)
	assert.False(t, ok, "metadata for an unresolved identifier must be skipped")

	for _, path := range []string{
		h.wc.NetPath("temp", "graphml"),
		h.wc.NetPath("", "graphml"),
		h.wc.Path(workdir.MetadataTable),
		h.wc.Path(workdir.MetadataFile),
	} {
		assert.FileExists(t, path)
	}
	assert.NoFileExists(t, h.wc.PendingPath())
	assert.NoFileExists(t, h.wc.ResultsPath())
}

func TestPipeline_IdempotentReentry(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline(0).Run(context.Background())
	require.NoError(t, err)

	before := snapshot(t, h.wc.Root)
	coauthorCalls := len(h.coauthors.calls)
	metadataCalls := len(h.metadata.calls)

	res, err := h.pipeline(0).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, before, snapshot(t, h.wc.Root))
	assert.Equal(t, coauthorCalls, len(h.coauthors.calls))
	assert.Equal(t, metadataCalls, len(h.metadata.calls))
	for _, n := range h.coauthors.calls {
		assert.Equal(t, 1, n)
	}
}

func TestPipeline_ResumesAcrossBoundedRuns(t *testing.T) {
	h := newHarness(t)

	runs := 0
	for ; runs < 30; runs++ {
		res, err := h.pipeline(1).Run(context.Background())
		require.NoError(t, err)
		if res.Complete {
			break
		}
		report, err := Inspect(h.wc)
		require.NoError(t, err)
		assert.Equal(t, res.Stage, report.Next)
	}
	assert.Greater(t, runs, 4)
	assert.Less(t, runs, 30)

	for sid, n := range h.coauthors.calls {
		assert.Equal(t, 1, n, "coauthors of %s fetched more than once", sid)
	}
	for sid, n := range h.metadata.calls {
		assert.Equal(t, 1, n, "metadata of %s fetched more than once", sid)
	}
	assert.FileExists(t, h.wc.NetPath("", "json"))
}

func TestPipeline_RetrievalFailureThenResume(t *testing.T) {
	h := newHarness(t)
	h.coauthors.failOn["C"] = true

	res, err := h.pipeline(0).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, stage.Gen2Crawl, res.Stage)
	var rerr *batch.RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "C", rerr.Item)

	pending, err := batch.NewStore[model.CoauthorPair](h.wc).Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, pending)

	res, err = h.pipeline(0).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, 1, h.coauthors.calls["B"])
	assert.Equal(t, 2, h.coauthors.calls["C"])

	gen2, err := common.ReadJSONFile[[]model.CoauthorPair](h.wc.Path(workdir.Gen2PairsFile))
	require.NoError(t, err)
	assert.Len(t, gen2, 5)
}

func TestPipeline_RecoversWrittenArtifact(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, common.WriteJSONFile(h.wc.Path(workdir.Gen1PairsFile),
		[]model.CoauthorPair{{"A", "B"}, {"A", "C"}, {"D", "C"}}))
	require.NoError(t, common.WriteJSONFile(h.wc.Path(workdir.StatusFile),
		map[stage.Name]stage.Status{stage.Gen1Crawl: {Started: true}}))

	res, err := h.pipeline(0).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Zero(t, h.coauthors.calls["A"])
	assert.Zero(t, h.coauthors.calls["D"])
	assert.Equal(t, 1, h.coauthors.calls["B"])
}

func TestPipeline_ReusesBatchSetBeforeStart(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, batch.NewStore[model.CoauthorPair](h.wc).Set([]string{"A", "D"}))

	res, err := h.pipeline(0).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, 1, h.coauthors.calls["A"])
}

func TestPipeline_MalformedSeeds(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.wc.Path(workdir.SeedsFile), []byte(`{"a":1}`), 0o644))

	res, err := h.pipeline(0).Run(context.Background())
	assert.ErrorIs(t, err, common.ErrMalformedInput)
	assert.Equal(t, stage.Gen1Crawl, res.Stage)
	assert.Empty(t, h.coauthors.calls)
}

func TestPipeline_MalformedPairAbortsAssembly(t *testing.T) {
	for name, pairs := range map[string]string{
		"three elements": `[["A","B","EXTRA"]]`,
		"one element":    `[["A"]]`,
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, os.WriteFile(h.wc.Path(workdir.Gen1PairsFile), []byte(pairs), 0o644))
			require.NoError(t, os.WriteFile(h.wc.Path(workdir.Gen2PairsFile), []byte(`[]`), 0o644))
			tracker, err := stage.Load(h.wc.Path(workdir.StatusFile))
			require.NoError(t, err)
			require.NoError(t, tracker.MarkFinished(stage.Gen1Crawl))
			require.NoError(t, tracker.MarkFinished(stage.Gen2Crawl))

			res, err := h.pipeline(0).Run(context.Background())
			assert.ErrorIs(t, err, common.ErrMalformedInput)
			assert.Equal(t, stage.GraphAssembly, res.Stage)
			assert.False(t, res.Complete)
			assert.NoFileExists(t, h.wc.Path(workdir.RetainedFile))
			assert.NoFileExists(t, h.wc.NetPath("temp", "json"))
		})
	}
}

func TestPipeline_MaxDistZeroKeepsSeeds(t *testing.T) {
	h := newHarness(t)
	p := NewPipeline(h.wc, Fetchers{Coauthors: h.coauthors, Metadata: h.metadata}, Options{})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete)

	retained, err := common.ReadJSONFile[[]string](h.wc.Path(workdir.RetainedFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "D"}, retained)
}

func TestDefaultOptions(t *testing.T) {
	assert.Equal(t, 1, DefaultOptions().MaxDist)
}

func TestInspect(t *testing.T) {
	h := newHarness(t)

	report, err := Inspect(h.wc)
	require.NoError(t, err)
	assert.Equal(t, stage.Gen1Crawl, report.Next)
	assert.False(t, report.BatchActive)
	assert.False(t, report.Complete)

	_, err = h.pipeline(1).Run(context.Background())
	require.NoError(t, err)

	report, err = Inspect(h.wc)
	require.NoError(t, err)
	assert.True(t, report.BatchActive)
	assert.Equal(t, 1, report.Pending)
	assert.True(t, report.Stages[stage.Gen1Crawl].Started)
	assert.False(t, report.Stages[stage.Gen1Crawl].Finished)
}

func TestDuplicatesReviewCycle(t *testing.T) {
	h := newHarness(t)

	_, err := FindDuplicates(h.wc, nil)
	assert.ErrorIs(t, err, ErrNoGraph)

	_, err = h.pipeline(0).Run(context.Background())
	require.NoError(t, err)

	groups, err := FindDuplicates(h.wc, nil)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Muller", groups[0].SurnameASCII)
	assert.FileExists(t, h.wc.Path(workdir.CandidatesFile))

	require.NoError(t, os.WriteFile(h.wc.Path(workdir.DupesFile),
		[]byte("surname,given,sid 1,sid 2\nMüller,Anna,A,B\n"), 0o644))

	d := dedupe.NewDeduplicator(nil)
	d.UUIDGenerator = func() string { return "merged" }
	report, err := CollapseDuplicates(h.wc, "", false, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"merged"}, report.Merged)
	assert.Equal(t, 3, report.Nodes)

	g, err := LoadGraph(h.wc)
	require.NoError(t, err)
	assert.False(t, g.HasNode("A"))
	assert.ElementsMatch(t, []string{"C"}, g.Neighbors("merged"))

	_, err = CollapseDuplicates(h.wc, "", false, d)
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	_, err = CollapseDuplicates(h.wc, "", true, d)
	assert.NoError(t, err)
}
