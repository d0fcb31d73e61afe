// Package idgen provides the snowflake node used for audit, outbox and
// payment event ids.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/virtuepath/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("idgen",
	fx.Provide(NewNode),
)

// NewNode returns the node for cfg.SnowflakeNode. Each running instance
// needs its own node id.
func NewNode(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.SnowflakeNode, err)
	}
	return node, nil
}
