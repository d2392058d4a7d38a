package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/auth"
	"github.com/smallbiznis/ticketing/internal/authorization"
	"github.com/smallbiznis/ticketing/internal/cache"
	"github.com/smallbiznis/ticketing/internal/checkin"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	"github.com/smallbiznis/ticketing/internal/emaillog"
	"github.com/smallbiznis/ticketing/internal/event"
	"github.com/smallbiznis/ticketing/internal/fulfillment"
	"github.com/smallbiznis/ticketing/internal/idempotency"
	"github.com/smallbiznis/ticketing/internal/migration"
	"github.com/smallbiznis/ticketing/internal/observability"
	"github.com/smallbiznis/ticketing/internal/order"
	"github.com/smallbiznis/ticketing/internal/payment"
	"github.com/smallbiznis/ticketing/internal/providers"
	"github.com/smallbiznis/ticketing/internal/queue"
	"github.com/smallbiznis/ticketing/internal/ratelimit"
	"github.com/smallbiznis/ticketing/internal/server"
	"github.com/smallbiznis/ticketing/internal/ticket"
	"github.com/smallbiznis/ticketing/internal/user"
	"github.com/smallbiznis/ticketing/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,
		queue.Module,
		providers.Module,

		// Functional Domains
		user.Module,
		auth.Module,
		authorization.Module,
		event.Module,
		ticket.Module,
		emaillog.Module,
		payment.Module,
		order.Module,
		idempotency.Module,
		fulfillment.Module,
		checkin.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
