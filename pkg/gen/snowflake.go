package gen

import (
	"moralduel-controlplane/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake", fx.Provide(ProvideNode))

// ProvideNode builds the ID generator for this process. Every replica must
// run with a distinct APP_NODE_ID.
func ProvideNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.AppNodeID)
	if err != nil {
		zap.L().Error("failed to init snowflake node", zap.Int64("node_id", cfg.AppNodeID), zap.Error(err))
		return nil, err
	}
	return node, nil
}
