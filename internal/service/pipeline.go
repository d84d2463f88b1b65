// Package service assembles the translation pipeline: open the book,
// parse and segment its documents, run the units through the
// orchestrator, join results back, and write the translated book.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/MimeLyc/contextual-epub-translator/internal/epub"
	"github.com/MimeLyc/contextual-epub-translator/internal/jobs"
	"github.com/MimeLyc/contextual-epub-translator/internal/markup"
	"github.com/MimeLyc/contextual-epub-translator/internal/segment"
	"github.com/MimeLyc/contextual-epub-translator/internal/translator"
	"github.com/MimeLyc/contextual-epub-translator/pkg/log"
)

// Pipeline turns one job into a translated book on disk.
type Pipeline struct {
	orch       *jobs.Orchestrator
	segmentCfg segment.Config
	stripRuby  bool
}

func NewPipeline(orch *jobs.Orchestrator, segmentCfg segment.Config, stripRuby bool) *Pipeline {
	return &Pipeline{
		orch:       orch,
		segmentCfg: segmentCfg,
		stripRuby:  stripRuby,
	}
}

// Execute runs the whole pipeline for one job. It satisfies
// jobs.Executor.
func (p *Pipeline) Execute(ctx context.Context, job *jobs.TranslationJob, report func(jobs.Progress)) error {
	archive, err := epub.Open(job.SourcePath)
	if err != nil {
		return err
	}

	meta := translator.BookMeta{
		Title:   archive.Package.Title,
		Creator: archive.Package.Creator,
	}

	// Parse every readable spine document. A malformed document is
	// fatal for that document only: it passes through untranslated.
	var docs []*markup.Document
	var units []jobs.WorkUnit
	for _, item := range archive.Documents() {
		data, ok := archive.Entry(item.Href)
		if !ok {
			log.Warn("job %s: spine item %s missing from archive", job.ID, item.Href)
			continue
		}
		doc, err := markup.Parse(item.Href, data)
		if err != nil {
			if errors.Is(err, markup.ErrMalformedMarkup) {
				log.Warn("job %s: %v, passing through unchanged", job.ID, err)
				continue
			}
			return err
		}
		if p.stripRuby {
			markup.StripRuby(doc)
		}
		docs = append(docs, doc)
		units = append(units, toWorkUnits(segment.Segment(doc, p.segmentCfg))...)
	}

	if len(units) == 0 {
		log.Info("job %s: no translatable text found", job.ID)
		return epub.WriteFile(archive, job.OutputPath)
	}

	if job.SourceLang == "" {
		job.SourceLang = detectLanguage(units)
		log.Info("job %s: detected source language %q", job.ID, job.SourceLang)
	}

	var progress jobs.Progress
	results, err := p.orch.Run(ctx, job, meta, units, func(pr jobs.Progress) {
		progress = pr
		if report != nil {
			report(pr)
		}
	})
	if err != nil {
		return err
	}

	// Join results per document and swap the rendered bytes into the
	// archive. Position resolution failures are per-document fatal.
	byDoc := make(map[string][]markup.UnitResult)
	for _, res := range results {
		byDoc[res.Ref.Doc] = append(byDoc[res.Ref.Doc], markup.UnitResult{Ref: res.Ref, Text: res.Text})
	}
	for _, doc := range docs {
		if err := markup.Reassemble(doc, byDoc[doc.ID]); err != nil {
			log.Error("job %s: %v, passing %s through unchanged", job.ID, err, doc.ID)
			continue
		}
		if err := archive.Replace(doc.ID, markup.Serialize(doc)); err != nil {
			return err
		}
	}

	if err := epub.WriteFile(archive, job.OutputPath); err != nil {
		return err
	}

	log.Info("job %s: wrote %s, %s", job.ID, job.OutputPath, Summary(progress))
	return nil
}

func toWorkUnits(units []segment.Unit) []jobs.WorkUnit {
	ret := make([]jobs.WorkUnit, len(units))
	for i, u := range units {
		ret[i] = jobs.WorkUnit{Ref: u.Ref, Text: u.Text, Context: u.Context}
	}
	return ret
}

// detectLanguage samples unit texts and returns an ISO 639-1 code, or
// empty when detection is unreliable.
func detectLanguage(units []jobs.WorkUnit) string {
	var sample strings.Builder
	for _, u := range units {
		sample.WriteString(u.Text)
		sample.WriteByte('\n')
		if sample.Len() >= 4096 {
			break
		}
	}

	info := whatlanggo.Detect(sample.String())
	if !info.IsReliable() {
		return ""
	}
	return whatlanggo.LangToStringShort(info.Lang)
}

// Summary condenses a finished job for logging and status output.
func Summary(p jobs.Progress) string {
	return fmt.Sprintf("%d/%d translated (%d from cache, %d degraded)",
		p.Succeeded, p.Total, p.CacheHits, p.Degraded)
}
