package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hupe1980/prospectmesh/agent"
	"github.com/hupe1980/prospectmesh/compliance"
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/dedup"
	"github.com/hupe1980/prospectmesh/logging"
	"github.com/hupe1980/prospectmesh/model"
	"github.com/hupe1980/prospectmesh/vector"
	"gopkg.in/yaml.v3"
)

// Document is a seed file. YAML and JSON are both accepted.
type Document struct {
	Companies    []core.Company     `yaml:"companies" json:"companies"`
	Suppressions []compliance.Entry `yaml:"suppressions" json:"suppressions"`
	Knowledge    []Record           `yaml:"knowledge" json:"knowledge"`
}

// Record is a piece of reference knowledge indexed for similarity lookups.
// FactKey, when set, names the fact the Hunter derives from a match.
type Record struct {
	ID      string `yaml:"id" json:"id"`
	Text    string `yaml:"text" json:"text"`
	FactKey string `yaml:"fact_key,omitempty" json:"fact_key,omitempty"`
}

// Parse decodes a seed document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed document: %w", err)
	}
	for i, r := range doc.Knowledge {
		if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Text) == "" {
			return nil, fmt.Errorf("knowledge record %d: id and text are required", i)
		}
	}
	return &doc, nil
}

// LoadFile reads and parses the seed document at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return Parse(data)
}

// Suppressor records suppression entries.
type Suppressor interface {
	Add(entries ...compliance.Entry) error
}

// Options configure an Importer. Every target is optional; sections without
// a target are skipped.
type Options struct {
	Store      core.ProspectStore
	Suppressor Suppressor
	Index      core.VectorIndex
	Embedder   model.Embedder

	// Overwrite replaces stored prospects instead of keeping their progress.
	Overwrite bool

	Logger logging.Logger
}

// Report summarizes an import.
type Report struct {
	Companies    int `json:"companies"`
	Kept         int `json:"kept"`
	Duplicates   int `json:"duplicates"`
	Suppressions int `json:"suppressions"`
	Knowledge    int `json:"knowledge"`
}

// Importer loads seed documents into the pipeline's stores.
type Importer struct {
	opts Options
}

// NewImporter creates an Importer.
func NewImporter(optFns ...func(o *Options)) *Importer {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Importer{opts: opts}
}

// Import writes companies as new prospects, records suppression entries and
// indexes knowledge records. Companies sharing a dedup key with an earlier
// company of the document are skipped.
func (im *Importer) Import(ctx context.Context, doc *Document) (Report, error) {
	var rep Report

	if im.opts.Store != nil {
		seen := make(map[string]struct{})
		for _, c := range doc.Companies {
			id := dedup.ProspectID(c)
			if id == "" {
				im.opts.Logger.Warn("seed company without identity skipped name=%q", c.Name)
				continue
			}
			key := dedup.ProspectKey(c)
			if _, dup := seen[key]; dup {
				rep.Duplicates++
				continue
			}
			seen[key] = struct{}{}

			if !im.opts.Overwrite {
				_, err := im.opts.Store.Get(ctx, id)
				if err == nil {
					rep.Kept++
					continue
				}
				if !errors.Is(err, core.ErrNotFound) {
					return rep, fmt.Errorf("failed to look up prospect %s: %w", id, err)
				}
			}

			p := core.NewProspect(c)
			p.ID = id
			if err := im.opts.Store.Put(ctx, p); err != nil {
				return rep, fmt.Errorf("failed to store prospect %s: %w", id, err)
			}
			rep.Companies++
		}
	}

	if im.opts.Suppressor != nil && len(doc.Suppressions) > 0 {
		if err := im.opts.Suppressor.Add(doc.Suppressions...); err != nil {
			return rep, fmt.Errorf("failed to record suppressions: %w", err)
		}
		rep.Suppressions = len(doc.Suppressions)
	}

	if len(doc.Knowledge) > 0 {
		if im.opts.Index == nil || im.opts.Embedder == nil {
			im.opts.Logger.Warn("knowledge records skipped: no index or embedder count=%d", len(doc.Knowledge))
		} else {
			for _, r := range doc.Knowledge {
				if err := im.index(ctx, r); err != nil {
					return rep, err
				}
				rep.Knowledge++
			}
		}
	}

	im.opts.Logger.Info("seed imported companies=%d kept=%d duplicates=%d suppressions=%d knowledge=%d",
		rep.Companies, rep.Kept, rep.Duplicates, rep.Suppressions, rep.Knowledge)
	return rep, nil
}

func (im *Importer) index(ctx context.Context, r Record) error {
	raw, err := im.opts.Embedder.Embed(ctx, r.Text)
	if err != nil {
		return fmt.Errorf("failed to embed knowledge record %s: %w", r.ID, err)
	}
	vec, err := vector.Normalize(raw)
	if err != nil {
		return fmt.Errorf("knowledge record %s: %w", r.ID, err)
	}

	meta := map[string]string{
		agent.MetaKind: agent.KindKnowledge,
		agent.MetaText: r.Text,
	}
	if r.FactKey != "" {
		meta[agent.MetaFactKey] = r.FactKey
	}
	if err := im.opts.Index.Insert(ctx, "knowledge:"+r.ID, vec, meta); err != nil {
		return fmt.Errorf("failed to index knowledge record %s: %w", r.ID, err)
	}
	return nil
}
