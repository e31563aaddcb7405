package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainpay/internal/cache"
	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/smallbiznis/domainpay/internal/config"
	"github.com/smallbiznis/domainpay/internal/domains"
	"github.com/smallbiznis/domainpay/internal/lock"
	"github.com/smallbiznis/domainpay/internal/migration"
	"github.com/smallbiznis/domainpay/internal/notification"
	"github.com/smallbiznis/domainpay/internal/observability"
	"github.com/smallbiznis/domainpay/internal/order"
	"github.com/smallbiznis/domainpay/internal/payment"
	"github.com/smallbiznis/domainpay/internal/providers"
	"github.com/smallbiznis/domainpay/internal/ratelimit"
	"github.com/smallbiznis/domainpay/internal/rates"
	"github.com/smallbiznis/domainpay/internal/reconcile"
	"github.com/smallbiznis/domainpay/internal/saga"
	"github.com/smallbiznis/domainpay/internal/scheduler"
	"github.com/smallbiznis/domainpay/internal/server"
	"github.com/smallbiznis/domainpay/internal/store"
	"github.com/smallbiznis/domainpay/internal/wallet"
	"github.com/smallbiznis/domainpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(clock.New),
		db.Module,
		migration.Module,
		cache.Module,
		lock.Module,
		ratelimit.Module,

		// Outbound collaborators
		providers.Module,
		rates.Module,
		notification.Module,

		// Payment and registration engine
		reconcile.Module,
		order.Module,
		wallet.Module,
		domains.Module,
		payment.Module,
		store.Module,
		saga.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

// RegisterSnowflake reads the node id from SNOWFLAKE_NODE so replicas never
// mint the same id.
func RegisterSnowflake() (*snowflake.Node, error) {
	node := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		node = parsed
	}
	return snowflake.NewNode(node)
}
