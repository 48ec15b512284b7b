package shard

import "fmt"

// Rewind selects what BeforeFirst resets.
type Rewind int

const (
	// RewindFull moves the cursor back to the first shard.
	RewindFull Rewind = iota
	// RewindCurrent only rewinds the shard that is currently open and
	// leaves the cursor where it is. After a completed pass that is the last
	// shard, so the next pass starts there and skips the first shard.
	// Source.RewindTo overrides which shard counts as open.
	RewindCurrent
)

func (r Rewind) String() string {
	switch r {
	case RewindFull:
		return "full"
	case RewindCurrent:
		return "current"
	default:
		return fmt.Sprintf("Rewind(%d)", int(r))
	}
}

// ParseRewind converts "full" or "current" into a Rewind.
func ParseRewind(s string) (Rewind, error) {
	switch s {
	case "", "full":
		return RewindFull, nil
	case "current":
		return RewindCurrent, nil
	default:
		return RewindFull, fmt.Errorf("shard: unknown rewind policy %q (want full|current)", s)
	}
}
