// Package cli implements the imbin command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/imbin"
	"github.com/hupe1980/imbin/blobstore"
	"github.com/hupe1980/imbin/blobstore/minio"
	"github.com/hupe1980/imbin/blobstore/s3"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	store    string
	bucket   string
	prefix   string
	endpoint string
	insecure bool
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "imbin",
		Short: "Paged image shards for training pipelines",
		Long: `imbin packs labeled images into paged binary shards and streams them
back through an asynchronous prefetch iterator. Shards may live on local
disk, S3 or MinIO.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.store, "store", envOrDefault("IMBIN_STORE", "local"), "Blob store backend (local, s3, minio)")
	pf.StringVar(&g.bucket, "bucket", os.Getenv("IMBIN_BUCKET"), "Bucket for s3 and minio stores")
	pf.StringVar(&g.prefix, "prefix", os.Getenv("IMBIN_PREFIX"), "Key prefix (root directory for the local store)")
	pf.StringVar(&g.endpoint, "endpoint", os.Getenv("IMBIN_ENDPOINT"), "Custom endpoint for s3 and minio stores")
	pf.BoolVar(&g.insecure, "insecure", os.Getenv("IMBIN_INSECURE") == "true", "Use plain HTTP for minio")
	pf.StringVar(&g.logLevel, "log-level", envOrDefault("IMBIN_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	root.AddCommand(newPackCmd(g))
	root.AddCommand(newIterateCmd(g))
	root.AddCommand(newVerifyCmd(g))
	root.AddCommand(newInspectCmd(g))
	return root
}

// Execute loads .env when present and runs the root command.
func Execute(ctx context.Context) error {
	_ = godotenv.Load()
	return newRootCmd().ExecuteContext(ctx)
}

func (g *globalOptions) openStore(ctx context.Context) (blobstore.BlobStore, error) {
	switch g.store {
	case "", "local":
		return blobstore.NewLocalStore(g.prefix), nil
	case "s3":
		if g.bucket == "" {
			return nil, fmt.Errorf("--bucket is required for the s3 store")
		}
		return s3.New(ctx, g.bucket, g.prefix, g.endpoint)
	case "minio":
		if g.bucket == "" || g.endpoint == "" {
			return nil, fmt.Errorf("--bucket and --endpoint are required for the minio store")
		}
		return minio.New(g.endpoint, !g.insecure, g.bucket, g.prefix)
	default:
		return nil, fmt.Errorf("unknown store %q (want local, s3 or minio)", g.store)
	}
}

func (g *globalOptions) logger() *imbin.Logger {
	var level slog.Level
	switch strings.ToLower(g.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return imbin.NewTextLogger(level)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
