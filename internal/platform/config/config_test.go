package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != defaultPort {
		t.Fatalf("expected default port %s got %s", defaultPort, cfg.Server.Port)
	}
	if cfg.Fulfillment.DeliveryDelay != 3*time.Minute {
		t.Fatalf("expected delivery delay 3m got %s", cfg.Fulfillment.DeliveryDelay)
	}
	if cfg.Fulfillment.ReturnRefundDelay != 5*time.Second {
		t.Fatalf("expected refund delay 5s got %s", cfg.Fulfillment.ReturnRefundDelay)
	}
	if cfg.Fulfillment.StockWorkers != defaultStockWorkers {
		t.Fatalf("expected %d stock workers got %d", defaultStockWorkers, cfg.Fulfillment.StockWorkers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SHIPMENT_DELIVERY_DELAY", "250ms")
	t.Setenv("RETURN_APPROVAL_DELAY", "1s")
	t.Setenv("FULFILLMENT_STOCK_WORKERS", "8")
	t.Setenv("FULFILLMENT_CURRENCY", "JPY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Fulfillment.DeliveryDelay != 250*time.Millisecond {
		t.Fatalf("expected 250ms got %s", cfg.Fulfillment.DeliveryDelay)
	}
	if cfg.Fulfillment.ReturnApprovalDelay != time.Second {
		t.Fatalf("expected 1s got %s", cfg.Fulfillment.ReturnApprovalDelay)
	}
	if cfg.Fulfillment.StockWorkers != 8 {
		t.Fatalf("expected 8 workers got %d", cfg.Fulfillment.StockWorkers)
	}
	if cfg.Fulfillment.CurrencyCode != "JPY" {
		t.Fatalf("expected JPY got %s", cfg.Fulfillment.CurrencyCode)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("SHIPMENT_DELIVERY_DELAY", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}

func TestLoadRejectsNonPositiveWorkers(t *testing.T) {
	t.Setenv("FULFILLMENT_STOCK_WORKERS", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero workers")
	}
}
