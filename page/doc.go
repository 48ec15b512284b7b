// Package page implements the binary page store used by imbin shards.
//
// # Overview
//
// A shard is a plain concatenation of fixed-size pages. Each page packs a
// sequence of opaque binary objects (typically encoded images). There is no
// file header, footer, or version tag: reader and writer must agree on the
// page size out of band.
//
// # Page Format
//
//	┌──────────────────────────────────────────┐
//	│ Count (uint32, little-endian)            │
//	├──────────────────────────────────────────┤
//	│ Lengths (Count × uint32)                 │
//	├──────────────────────────────────────────┤
//	│ Payload blob (sum of Lengths bytes)      │
//	├──────────────────────────────────────────┤
//	│ Zero padding up to the page size         │
//	└──────────────────────────────────────────┘
//
// Pages carry no checksum and no compression. Whole-stream compression of a
// shard is handled one layer up.
//
// # Usage
//
//	p := page.New(page.DefaultSize)
//	for {
//	    ok, err := p.Load(r)
//	    if err != nil { ... }
//	    if !ok { break }
//	    for i := 0; i < p.Len(); i++ {
//	        obj := p.At(i) // valid until the next Load
//	    }
//	}
package page
