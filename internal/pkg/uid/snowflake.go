package uid

import (
	"crypto/sha256"
	"os"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Snowflake generates time-sortable int64 IDs safe across restarts.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake creates a generator whose node number is derived from the
// machine identity so two hosts do not collide.
func NewSnowflake() (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeNumber())
	if err != nil {
		return nil, err
	}

	return &Snowflake{node: node}, nil
}

// Generate returns a new int64 identifier.
func (s *Snowflake) Generate() int64 {
	return s.node.Generate().Int64()
}

// nodeNumber hashes /etc/machine-id (or the hostname) into the 10-bit node
// space. A collision only matters when two nodes also generate in the same
// millisecond with the same sequence.
func nodeNumber() int64 {
	src := "unknown"

	if b, err := os.ReadFile("/etc/machine-id"); err == nil {
		if s := strings.TrimSpace(string(b)); s != "" {
			src = s
		}
	} else if h, err := os.Hostname(); err == nil {
		if s := strings.TrimSpace(h); s != "" {
			src = s
		}
	}

	sum := sha256.Sum256([]byte(src))
	return int64(sum[0])<<2 | int64(sum[1]&0x03)
}
