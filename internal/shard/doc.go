// Package shard reads and writes sharded page streams.
//
// A shard is one blob holding a concatenation of fixed-size pages (see package
// page), optionally compressed as a whole stream. Source walks an ordered list
// of shards as one endless page stream: when a shard runs out it opens the next
// one, and when the cursor wraps back to the first shard it reports the end of
// one pass. Empty shards are skipped.
//
//	src, err := shard.New(store, []string{"train-000.bin", "train-001.bin.zst"}, shard.Options{})
//	if err != nil { ... }
//	defer src.Close()
//	if err := src.Ready(ctx); err != nil { ... }
//
//	p := page.New(src.PageSize())
//	for {
//	    ok, err := src.Next(ctx, p)
//	    if err != nil || !ok {
//	        break
//	    }
//	    for i := 0; i < p.Len(); i++ {
//	        use(p.At(i))
//	    }
//	}
//
// Writer produces shards and a "<name>.manifest" sidecar with page and object
// counts, which Count uses to avoid scanning the shard.
package shard
