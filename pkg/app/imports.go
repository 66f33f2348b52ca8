package app

// Every module compiled into mimir registers itself from init.
import (
	_ "github.com/flemzord/mimir/internal/chat"
	_ "github.com/flemzord/mimir/internal/cron"
	_ "github.com/flemzord/mimir/internal/gateway"
	_ "github.com/flemzord/mimir/internal/telemetry"
	_ "github.com/flemzord/mimir/modules/memory/redis"
	_ "github.com/flemzord/mimir/modules/memory/sqlite"
)
