package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/hupe1980/imbin"
	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/compress"
	"github.com/hupe1980/imbin/internal/resource"
	"github.com/hupe1980/imbin/internal/shard"
	"github.com/hupe1980/imbin/page"
	"github.com/spf13/cobra"
)

type packOptions struct {
	list     string
	root     string
	out      string
	listOut  string
	pageSize int
	compress string
	ioLimit  int64
}

func newPackCmd(g *globalOptions) *cobra.Command {
	o := &packOptions{}

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Pack the images of a list file into a shard",
		Long: `Pack reads a list file of "<index> <label> <path>" lines from local disk and
writes the encoded image at <root>/<path> of every line, in list order, into
one shard of the selected store. A manifest is written next to the shard.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPack(cmd, g, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.list, "list", "", "List file on local disk")
	f.StringVar(&o.root, "root", ".", "Directory image paths are relative to")
	f.StringVar(&o.out, "out", "", "Shard name in the store")
	f.StringVar(&o.listOut, "list-out", "", "Also copy the list file into the store under this name")
	f.IntVar(&o.pageSize, "page-size", page.DefaultSize, "Page size in bytes")
	f.StringVar(&o.compress, "compress", "none", "Shard compression (none, zstd, lz4)")
	f.Int64Var(&o.ioLimit, "io-limit", 0, "Cap shard writes at this many bytes per second (0 = unlimited)")
	_ = cmd.MarkFlagRequired("list")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runPack(cmd *cobra.Command, g *globalOptions, o *packOptions) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	kind, err := compress.Parse(o.compress)
	if err != nil {
		return err
	}
	out := o.out
	if ext := kind.Ext(); ext != "" && !strings.HasSuffix(out, ext) {
		out += ext
	}

	recs, err := imbin.ReadList(ctx, blobstore.NewLocalStore(""), o.list)
	if err != nil {
		return err
	}

	store, err := g.openStore(ctx)
	if err != nil {
		return err
	}

	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: o.ioLimit})
	sw, err := shard.NewWriter(ctx, store, out, o.pageSize, shard.WithWriteLimit(rc))
	if err != nil {
		return err
	}
	for i, rec := range recs {
		if rec.Rest == "" {
			_ = sw.Abort()
			return fmt.Errorf("%s: record %d has no image path", o.list, i+1)
		}
		data, err := os.ReadFile(filepath.Join(o.root, filepath.FromSlash(rec.Rest)))
		if err != nil {
			_ = sw.Abort()
			return err
		}
		if err := sw.Add(data); err != nil {
			_ = sw.Abort()
			return fmt.Errorf("%s: %w", rec.Rest, err)
		}
	}
	m, err := sw.Close()
	if err != nil {
		return err
	}

	if o.listOut != "" {
		data, err := os.ReadFile(o.list)
		if err != nil {
			return err
		}
		if err := blobstore.WriteAll(ctx, store, o.listOut, data); err != nil {
			return err
		}
	}

	green := color.New(color.FgGreen)
	green.Fprintf(w, "packed %s\n", out)
	fmt.Fprintf(w, "  objects:     %d\n", m.Objects)
	fmt.Fprintf(w, "  pages:       %d\n", m.Pages)
	fmt.Fprintf(w, "  page size:   %d\n", m.PageSize)
	fmt.Fprintf(w, "  compression: %s\n", m.Compression)
	return nil
}
