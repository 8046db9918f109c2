// Package workdir resolves every on-disk artifact of a crawl relative to one
// storage root. A Context is passed explicitly to each component instead of
// relying on the process working directory.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	BatchFolder    = "batch"
	PendingFile    = "batch.json"
	ResultsFile    = "data.json"
	BackupSuffix   = ".bak"
	StatusFile     = "status.json"
	SeedsFile      = "sids.json"
	Gen1PairsFile  = "gen_1_coauth.json"
	Gen2PairsFile  = "gen_2_coauth.json"
	RetainedFile   = "combined_sids.json"
	MetadataFile   = "combined_metadata.json"
	MetadataTable  = "combined_metadata.csv"
	NetPrefix      = "coauth_net"
	CandidatesFile = "potential_dupes.csv"
	DupesFile      = "dupes.csv"
)

// Context names the storage root and the stage currently driving the batch.
type Context struct {
	Root  string
	Stage string
}

// New returns a Context rooted at root, creating the directory if needed.
func New(root string) (Context, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Context{}, fmt.Errorf("failed to resolve work dir '%s': %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return Context{}, fmt.Errorf("failed to create work dir '%s': %w", abs, err)
	}
	return Context{Root: abs}, nil
}

// WithStage returns a copy of c tagged with the active stage.
func (c Context) WithStage(stage string) Context {
	c.Stage = stage
	return c
}

func (c Context) Path(name string) string { return filepath.Join(c.Root, name) }

func (c Context) BatchDir() string    { return filepath.Join(c.Root, BatchFolder) }
func (c Context) PendingPath() string { return filepath.Join(c.BatchDir(), PendingFile) }
func (c Context) ResultsPath() string { return filepath.Join(c.BatchDir(), ResultsFile) }
func (c Context) BackupPath() string  { return c.ResultsPath() + BackupSuffix }

// NetPath returns the graph artifact path for a variant ("" for the final
// graph, "temp" for the intermediate snapshot) and an extension.
func (c Context) NetPath(variant, ext string) string {
	name := NetPrefix
	if variant != "" {
		name += "." + variant
	}
	return filepath.Join(c.Root, name+"."+ext)
}
