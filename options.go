package imbin

import (
	"log/slog"

	"github.com/hupe1980/imbin/blobstore"
)

type options struct {
	store            blobstore.BlobStore
	decoder          Decoder
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures the collaborators of an Iterator or VerifyDataset.
type Option func(*options)

// WithStore reads lists and shards from store. Names in Config are resolved
// by the store. Default: the local filesystem, names are file paths.
func WithStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithDecoder replaces the default ImageDecoder.
func WithDecoder(d Decoder) Option {
	return func(o *options) {
		o.decoder = d
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &imbin.BasicMetricsCollector{}
//	it := imbin.New(cfg, imbin.WithMetricsCollector(metrics))
//	// ... iterate ...
//	stats := metrics.GetStats()
//	fmt.Printf("Samples: %d, Avg decode: %dns\n", stats.SampleCount, stats.DecodeAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := imbin.NewJSONLogger(slog.LevelInfo)
//	it := imbin.New(cfg, imbin.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		store:            blobstore.NewLocalStore(""),
		decoder:          ImageDecoder{},
		metricsCollector: NoopMetricsCollector{},
		logger:           NewLogger(nil),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.decoder == nil {
		o.decoder = ImageDecoder{}
	}
	return o
}
