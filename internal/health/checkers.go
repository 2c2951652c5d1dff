package health

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/meghal86/guardian/internal/circuitbreaker"
)

// DBChecker pings the database.
func DBChecker(db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		if err := db.PingContext(ctx); err != nil {
			return Status{Name: "database", Healthy: false, Detail: err.Error()}
		}
		return Status{Name: "database", Healthy: true}
	}
}

// BreakerChecker reports upstream provider health from circuit breaker
// state. Open circuits mean a provider is down; the scan engine still
// serves degraded results, so this is reported unhealthy only when
// every known provider's circuit is open.
func BreakerChecker(b *circuitbreaker.Breaker) Checker {
	return func(ctx context.Context) Status {
		snapshot := b.Snapshot()
		if len(snapshot) == 0 {
			return Status{Name: "providers", Healthy: true, Detail: "no provider calls yet"}
		}

		var open []string
		for _, s := range snapshot {
			if s.State == circuitbreaker.StateOpen.String() {
				open = append(open, s.Provider)
			}
		}

		switch {
		case len(open) == 0:
			return Status{Name: "providers", Healthy: true}
		case len(open) == len(snapshot):
			return Status{
				Name:    "providers",
				Healthy: false,
				Detail:  "all provider circuits open: " + strings.Join(open, ", "),
			}
		default:
			return Status{
				Name:    "providers",
				Healthy: true,
				Detail:  fmt.Sprintf("%d/%d provider circuits open: %s", len(open), len(snapshot), strings.Join(open, ", ")),
			}
		}
	}
}
