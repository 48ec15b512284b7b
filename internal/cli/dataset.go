package cli

import (
	"github.com/hupe1980/imbin"
	"github.com/spf13/cobra"
)

// datasetOptions are the flags that describe a dataset.
type datasetOptions struct {
	config    string
	imageList string
	imageBin  string
	pageSize  int
	workers   int
}

func (d *datasetOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&d.config, "config", "", "TOML config file")
	f.StringVar(&d.imageList, "image-list", "", "List files, separated by ',' or '%'")
	f.StringVar(&d.imageBin, "image-bin", "", "Shard names, separated by ',' or '%'")
	f.IntVar(&d.pageSize, "page-size", 0, "Page size in bytes (default from config)")
	f.IntVar(&d.workers, "verify-workers", 0, "Pairs verified in parallel (default from config)")
}

// load builds the config from --config and applies flag overrides.
func (d *datasetOptions) load() (imbin.Config, error) {
	cfg := imbin.DefaultConfig()
	if d.config != "" {
		var err error
		if cfg, err = imbin.LoadConfig(d.config); err != nil {
			return cfg, err
		}
	}
	if d.imageList != "" {
		if err := cfg.SetParam("image_list", d.imageList); err != nil {
			return cfg, err
		}
	}
	if d.imageBin != "" {
		if err := cfg.SetParam("image_bin", d.imageBin); err != nil {
			return cfg, err
		}
	}
	if d.pageSize > 0 {
		cfg.PageSize = d.pageSize
	}
	if d.workers > 0 {
		cfg.VerifyWorkers = d.workers
	}
	return cfg, cfg.Validate()
}
