package common

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var (
	snode     *snowflake.Node
	snodeOnce sync.Once
	nodeId    int64 = 1
)

// SetupNode fixes the snowflake worker node id. Must be called before the
// first ID is generated to take effect.
func SetupNode(id int64) {
	if id > 0 {
		nodeId = id % 1024
	}
}

func node() *snowflake.Node {
	snodeOnce.Do(func() {
		var err error
		snode, err = snowflake.NewNode(nodeId)
		if err != nil {
			panic(err)
		}
	})
	return snode
}

// UUIDint64 returns a snowflake int64 ID.
func UUIDint64() int64 {
	return node().Generate().Int64()
}

// UUID returns a snowflake ID in base36 string form.
func UUID() string {
	return node().Generate().Base36()
}

// MessageID returns a wire-safe upper-hex message identifier. The enqueuing
// side assigns it so the protocol-level ID matches the persisted row.
func MessageID() string {
	return strings.ToUpper(fmt.Sprintf("3EB0%012X", node().Generate().Int64()&0xFFFFFFFFFFFF))
}

// IfEmptyStr returns defval when src is blank.
func IfEmptyStr(src string, defval string) string {
	if strings.TrimSpace(src) == "" {
		return defval
	}
	return src
}
