package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/internal/shard"
	"github.com/hupe1980/imbin/page"
	"github.com/spf13/cobra"
)

func newInspectCmd(g *globalOptions) *cobra.Command {
	var pageSize int

	cmd := &cobra.Command{
		Use:   "inspect SHARD...",
		Short: "Report pages and objects per shard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			store, err := g.openStore(ctx)
			if err != nil {
				return err
			}

			cyan := color.New(color.FgCyan)
			for _, name := range args {
				blob, err := store.Open(ctx, name)
				if err != nil {
					return err
				}
				size := blob.Size()
				_ = blob.Close()

				cyan.Fprintln(w, name)
				fmt.Fprintf(w, "  size:        %d\n", size)

				ps := pageSize
				m, err := shard.ReadManifest(ctx, store, name)
				switch {
				case err == nil:
					fmt.Fprintf(w, "  manifest:    v%d, %s, created %s\n", m.Version, m.Compression, m.Created.Format("2006-01-02 15:04:05"))
					if ps == 0 {
						ps = m.PageSize
					}
				case errors.Is(err, blobstore.ErrNotFound):
					fmt.Fprintln(w, "  manifest:    none")
				default:
					return err
				}

				if ps == 0 {
					ps = page.DefaultSize
				}
				st, err := shard.Scan(ctx, store, name, shard.Options{PageSize: ps})
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "  page size:   %d\n", ps)
				fmt.Fprintf(w, "  pages:       %d\n", st.Pages)
				fmt.Fprintf(w, "  objects:     %d\n", st.Objects)
				if m != nil && (m.Pages != st.Pages || m.Objects != st.Objects) {
					color.New(color.FgRed).Fprintf(w, "  manifest disagrees: %d pages, %d objects\n", m.Pages, m.Objects)
				}
				if m != nil && m.Checksum != 0 {
					sum, err := shard.Checksum(ctx, store, name)
					if err != nil {
						return err
					}
					if sum == m.Checksum {
						fmt.Fprintf(w, "  crc32c:      %08x ok\n", sum)
					} else {
						color.New(color.FgRed).Fprintf(w, "  crc32c:      %08x, manifest has %08x\n", sum, m.Checksum)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Page size in bytes (default from manifest, else 64 MiB)")
	return cmd
}
