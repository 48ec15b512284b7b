// Package imbin streams labeled image samples out of paged binary shards.
//
// A dataset is a set of (list, shard) pairs. Each list is a text file of
// "<index> <label> ..." lines; the Nth line of a list describes the Nth
// object of its shard. Shards are sequences of fixed-size pages (see package
// page) stored in any blobstore backend, optionally zstd or lz4 compressed.
//
// A background producer reads pages ahead of the consumer through a bounded
// ring of Config.BufferSize slots while the consumer decodes samples.
//
// # Quick Start
//
//	cfg := imbin.DefaultConfig()
//	_ = cfg.SetParam("image_list", "train0.lst,train1.lst")
//	_ = cfg.SetParam("image_bin", "train0.bin,train1.bin")
//
//	it := imbin.New(cfg)
//	if err := it.Init(ctx); err != nil {
//	    return err
//	}
//	defer it.Close()
//
//	for s, err := range it.Samples(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    train(s.Index, s.Label, &s.Data)
//	}
//
// # Remote Shards
//
//	store, _ := s3.New(ctx, "datasets", "imagenet/", "")
//	it := imbin.New(cfg, imbin.WithStore(store))
//
// Setting Config.CacheDir keeps fetched shard blocks on local disk so later
// epochs do not hit the network again.
//
// # Channel Order
//
// A Decoder returns interleaved 3-channel pixels in its native order. Sample
// channel c holds native channel 2-c. The default ImageDecoder emits BGR, so
// Sample.Data is RGB.
//
// # Samples Are Reused
//
// Value returns a pointer into the iterator. The sample, its tensor and the
// byte buffer behind it are overwritten by the next call to Next.
package imbin
