package di

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/storelane/fulfillment/internal/platform/config"
	pfirestore "github.com/storelane/fulfillment/internal/platform/firestore"
	"github.com/storelane/fulfillment/internal/platform/jobs"
	"github.com/storelane/fulfillment/internal/platform/observability"
	"github.com/storelane/fulfillment/internal/platform/schedule"
	firestorerepo "github.com/storelane/fulfillment/internal/repositories/firestore"
	"github.com/storelane/fulfillment/internal/services"
)

// Services bundles the service-layer contracts the HTTP handlers rely upon.
type Services struct {
	Customers   services.CustomerService
	Inventory   services.InventoryService
	Orders      services.OrderService
	Payments    services.PaymentService
	Shipments   services.ShipmentService
	Returns     services.ReturnService
	Fulfillment services.FulfillmentService
}

// Container wires repositories, services, and background infrastructure for
// runtime use.
type Container struct {
	Config    config.Config
	Firestore *pfirestore.Provider
	Scheduler *schedule.TimerScheduler
	Services  Services

	pubsubClient *pubsub.Client
}

// NewContainer constructs the runtime dependencies from configuration.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		return nil, errors.New("di: logger is required")
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	scheduler := schedule.NewTimerScheduler(logger.Named("scheduler"))
	logHook := observability.ServiceLogHook(logger)

	var (
		pubsubClient *pubsub.Client
		publisher    services.FulfillmentEventPublisher
	)
	if cfg.PubSub.Topic != "" {
		projectID := cfg.PubSub.ProjectID
		if projectID == "" {
			projectID = cfg.Firestore.ProjectID
		}
		client, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			scheduler.Close()
			return nil, fmt.Errorf("di: create pubsub client: %w", err)
		}
		pub, err := jobs.NewPubSubFulfillmentPublisher(client.Topic(cfg.PubSub.Topic))
		if err != nil {
			_ = client.Close()
			scheduler.Close()
			return nil, fmt.Errorf("di: build fulfillment publisher: %w", err)
		}
		pubsubClient = client
		publisher = pub
	}

	svc, err := buildServices(provider, scheduler, publisher, cfg, logHook)
	if err != nil {
		if pubsubClient != nil {
			_ = pubsubClient.Close()
		}
		scheduler.Close()
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Firestore:    provider,
		Scheduler:    scheduler,
		Services:     svc,
		pubsubClient: pubsubClient,
	}, nil
}

// Close releases background workers and clients. The scheduler is drained
// first so no in-flight delayed transition loses its store mid-write.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Scheduler != nil {
		c.Scheduler.Close()
	}
	if c.pubsubClient != nil {
		if err := c.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if c.Firestore != nil {
		if err := c.Firestore.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close firestore provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildServices(
	provider *pfirestore.Provider,
	scheduler services.Scheduler,
	publisher services.FulfillmentEventPublisher,
	cfg config.Config,
	logHook func(ctx context.Context, event string, fields map[string]any),
) (Services, error) {
	products, err := firestorerepo.NewProductRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build product repository: %w", err)
	}
	customers, err := firestorerepo.NewCustomerRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build customer repository: %w", err)
	}
	orders, err := firestorerepo.NewOrderRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build order repository: %w", err)
	}
	payments, err := firestorerepo.NewPaymentRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build payment repository: %w", err)
	}
	shipments, err := firestorerepo.NewShipmentRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build shipment repository: %w", err)
	}
	returns, err := firestorerepo.NewReturnRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build return repository: %w", err)
	}

	var svc Services

	svc.Inventory, err = services.NewInventoryService(services.InventoryServiceDeps{
		Products: products,
		Workers:  cfg.Fulfillment.StockWorkers,
		Logger:   logHook,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}

	svc.Customers, err = services.NewCustomerService(services.CustomerServiceDeps{
		Customers: customers,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build customer service: %w", err)
	}

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders: orders,
		Logger: logHook,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	svc.Payments, err = services.NewPaymentService(services.PaymentServiceDeps{
		Payments: payments,
		Logger:   logHook,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}

	svc.Shipments, err = services.NewShipmentService(services.ShipmentServiceDeps{
		Shipments:     shipments,
		Scheduler:     scheduler,
		Events:        publisher,
		DeliveryDelay: cfg.Fulfillment.DeliveryDelay,
		Logger:        logHook,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipment service: %w", err)
	}

	svc.Returns, err = services.NewReturnService(services.ReturnServiceDeps{
		Returns:       returns,
		Orders:        orders,
		Payments:      svc.Payments,
		Scheduler:     scheduler,
		Events:        publisher,
		ApprovalDelay: cfg.Fulfillment.ReturnApprovalDelay,
		RefundDelay:   cfg.Fulfillment.ReturnRefundDelay,
		Logger:        logHook,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build return service: %w", err)
	}

	svc.Fulfillment, err = services.NewFulfillmentService(services.FulfillmentServiceDeps{
		Customers:   svc.Customers,
		Inventory:   svc.Inventory,
		Orders:      svc.Orders,
		Payments:    svc.Payments,
		Shipments:   svc.Shipments,
		Events:      publisher,
		Currency:    cfg.Fulfillment.CurrencyCode,
		StepTimeout: cfg.Fulfillment.StepTimeout,
		Logger:      logHook,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build fulfillment service: %w", err)
	}

	return svc, nil
}
