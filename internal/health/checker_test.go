package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckerReportsEachProbe(t *testing.T) {
	storeDown := true
	c := NewChecker(
		PingProbe("oracle", pingFunc(func(context.Context) error { return nil })),
		Probe{Name: "store", Check: func(context.Context) error {
			if storeDown {
				return errors.New("database is locked")
			}
			return nil
		}},
	)

	statuses := c.Check(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Healthy || statuses[0].Name != "oracle" {
		t.Errorf("oracle status = %+v", statuses[0])
	}
	if statuses[1].Healthy || statuses[1].Error != "database is locked" {
		t.Errorf("store status = %+v", statuses[1])
	}
	if c.Healthy() {
		t.Error("checker should be unhealthy while a probe fails")
	}

	storeDown = false
	c.Check(context.Background())
	if !c.Healthy() {
		t.Errorf("checker should recover, got %+v", c.GetStatuses())
	}
}

func TestCheckerAppliesTimeout(t *testing.T) {
	c := NewChecker(Probe{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	c.timeout = 10 * time.Millisecond

	statuses := c.Check(context.Background())
	if statuses[0].Healthy {
		t.Error("slow probe should time out")
	}
}
