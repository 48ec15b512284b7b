package imbin

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/resource"
	"github.com/hupe1980/imbin/internal/shard"
	"golang.org/x/sync/errgroup"
)

// maxReportedDuplicates caps Report.Duplicates.
const maxReportedDuplicates = 100

// PairReport describes one (list, shard) pair.
type PairReport struct {
	List    string
	Shard   string
	Records int64
	Objects int64
	Pages   int64
	// FromManifest is set when the shard counts came from its manifest.
	FromManifest bool

	indices *roaring.Bitmap
	dups    *roaring.Bitmap
}

// OK reports whether the list and shard counts agree.
func (p *PairReport) OK() bool { return p.Records == p.Objects }

// Report is the result of VerifyDataset.
type Report struct {
	Pairs []PairReport
	// Records is the total number of list records.
	Records int64
	// Distinct is the number of distinct sample indices.
	Distinct uint64
	// DuplicateCount is the number of indices listed more than once.
	DuplicateCount uint64
	// Duplicates holds the smallest duplicated indices.
	Duplicates []uint32
}

// OK reports whether every pair matches and no index is duplicated.
func (r *Report) OK() bool {
	for i := range r.Pairs {
		if !r.Pairs[i].OK() {
			return false
		}
	}
	return r.DuplicateCount == 0
}

// Mismatches returns a CountMismatchError for every pair whose counts differ.
func (r *Report) Mismatches() []*CountMismatchError {
	var out []*CountMismatchError
	for _, p := range r.Pairs {
		if !p.OK() {
			out = append(out, &CountMismatchError{List: p.List, Shard: p.Shard, Records: p.Records, Objects: p.Objects})
		}
	}
	return out
}

// VerifyDataset checks every (list, shard) pair of cfg without decoding any
// sample. Shard counts come from the manifest when one exists and from a
// page scan otherwise. Pairs are checked in parallel, bounded by
// Config.VerifyWorkers.
func VerifyDataset(ctx context.Context, cfg Config, optFns ...Option) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(optFns)
	rc := resource.NewController(resource.Config{
		MaxBackgroundWorkers: int64(cfg.VerifyWorkers),
		IOLimitBytesPerSec:   cfg.IOLimitBytesPerSec,
	})

	pairs, err := countPairs(ctx, o.store, &cfg, rc)
	if err != nil {
		return nil, err
	}

	report := &Report{Pairs: pairs}
	seen := roaring.New()
	dups := roaring.New()
	for _, p := range pairs {
		report.Records += p.Records
		dups.Or(p.dups)
		dups.Or(roaring.And(seen, p.indices))
		seen.Or(p.indices)
	}
	report.Distinct = seen.GetCardinality()
	report.DuplicateCount = dups.GetCardinality()

	it := dups.Iterator()
	for it.HasNext() && len(report.Duplicates) < maxReportedDuplicates {
		report.Duplicates = append(report.Duplicates, it.Next())
	}

	for i := range report.Pairs {
		report.Pairs[i].indices, report.Pairs[i].dups = nil, nil
	}
	o.logger.InfoContext(ctx, "dataset verified",
		"pairs", len(pairs),
		"records", report.Records,
		"duplicates", report.DuplicateCount,
		"ok", report.OK(),
	)
	return report, nil
}

// countPairs counts list records and shard objects of every pair.
func countPairs(ctx context.Context, store blobstore.BlobStore, cfg *Config, rc *resource.Controller) ([]PairReport, error) {
	pairs := make([]PairReport, len(cfg.ImageList))
	g, gctx := errgroup.WithContext(ctx)

	for i := range pairs {
		if err := rc.AcquireBackground(gctx); err != nil {
			break
		}
		g.Go(func() error {
			defer rc.ReleaseBackground()
			p, err := countPair(gctx, store, cfg.ImageList[i], cfg.ImageBin[i], shard.Options{
				PageSize: cfg.PageSize,
				Resource: rc,
			})
			if err != nil {
				return err
			}
			pairs[i] = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

func countPair(ctx context.Context, store blobstore.BlobStore, list, bin string, opts shard.Options) (PairReport, error) {
	p := PairReport{List: list, Shard: bin, indices: roaring.New(), dups: roaring.New()}

	l, err := OpenList(ctx, store, list)
	if err != nil {
		return p, err
	}
	defer l.Close()

	for {
		rec, ok, err := l.Next()
		if err != nil {
			return p, err
		}
		if !ok {
			break
		}
		p.Records++
		if !p.indices.CheckedAdd(rec.Index) {
			p.dups.Add(rec.Index)
		}
	}

	st, err := shard.Count(ctx, store, bin, opts)
	if err != nil {
		return p, fmt.Errorf("imbin: count %s: %w", bin, err)
	}
	p.Objects, p.Pages, p.FromManifest = st.Objects, st.Pages, st.FromManifest
	return p, nil
}
