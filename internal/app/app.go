// Package app assembles one service process: bus connection, store, domain
// service, listeners and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ticketing/internal/api"
	"github.com/example/ticketing/internal/auth"
	"github.com/example/ticketing/internal/command"
	"github.com/example/ticketing/internal/config"
	"github.com/example/ticketing/internal/domain/order"
	"github.com/example/ticketing/internal/domain/payment"
	"github.com/example/ticketing/internal/domain/ticket"
	"github.com/example/ticketing/internal/eventbus"
	"github.com/example/ticketing/internal/events"
	"github.com/example/ticketing/internal/infrastructure/redislock"
	"github.com/example/ticketing/internal/infrastructure/store"
	"github.com/example/ticketing/internal/infrastructure/stripe"
	"github.com/example/ticketing/internal/listener"
	"github.com/example/ticketing/internal/publisher"
	"github.com/example/ticketing/internal/query"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrBusClosed is returned by Run when the bus connection goes away.
var ErrBusClosed = errors.New("bus connection closed")

const shutdownTimeout = 10 * time.Second

// sessionTTL only matters for tokens this process signs, which it never
// does outside tests.
const sessionTTL = time.Hour

// Store is implemented by both the in-memory and the PostgreSQL stores.
type Store interface {
	store.TicketStore
	store.OrderStore
	store.PaymentStore
}

// Deps are the external collaborators of a service. Charger and Locker are
// only used by payments.
type Deps struct {
	Conn    eventbus.Conn
	Store   Store
	Charger payment.Charger
	Locker  payment.Locker
}

type App struct {
	cfg       *config.Config
	logger    *logrus.Entry
	conn      eventbus.Conn
	e         *echo.Echo
	server    *api.Server
	runner    *listener.Runner
	listeners []listener.Listener
	sweeper   *order.Sweeper

	ready   chan struct{}
	closers []func() error
}

// New connects every collaborator named by cfg and builds the service. A
// failure here is fatal for the process.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (a *App, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			closeAll(closers, logger)
		}
	}()

	conn, err := ConnectBus(ctx, cfg.Bus, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to bus: %w", err)
	}
	closers = append(closers, conn.Close)
	logger.WithField("driver", cfg.Bus.Driver).Info("[Bus] connected")

	deps := Deps{Conn: conn}

	if cfg.InMemoryStore() {
		deps.Store = store.NewMemory()
	} else {
		db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, db.Close)
		if err := store.InitializeSchema(ctx, db); err != nil {
			return nil, err
		}
		deps.Store = store.NewPostgres(db)
	}

	if cfg.Service == config.ServicePayments {
		client, err := redislock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, client.Close)
		deps.Locker = redislock.New(client, cfg.Bus.ClusterID+":", redislock.DefaultTTL)
		deps.Charger = stripe.NewClient(cfg.StripeURL, cfg.StripeKey, cfg.StripeTimeout, logger)
	}

	a, err = Build(cfg, deps, logger)
	if err != nil {
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// Build wires the service named by cfg.Service on top of deps. The caller
// keeps ownership of deps.
func Build(cfg *config.Config, deps Deps, logger *logrus.Entry) (*App, error) {
	if deps.Conn == nil || deps.Store == nil {
		return nil, errors.New("bus connection and store are required")
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		conn:   deps.Conn,
		runner: listener.NewRunner(logger),
		ready:  make(chan struct{}),
	}

	var services command.Services
	queries := query.NewHandler(deps.Store, deps.Store)
	switch cfg.Service {
	case config.ServiceTickets:
		svc := ticket.NewService(deps.Store,
			publisher.New[events.TicketCreated](deps.Conn),
			publisher.New[events.TicketUpdated](deps.Conn),
		)
		services.Tickets = svc
		a.listeners = []listener.Listener{
			listener.New[events.OrderCreated](ticket.QueueGroup, svc.ReserveForOrder),
			listener.New[events.OrderCancelled](ticket.QueueGroup, svc.ReleaseForOrder),
		}

	case config.ServiceOrders:
		svc := order.NewService(deps.Store,
			publisher.New[events.OrderCreated](deps.Conn),
			publisher.New[events.OrderCancelled](deps.Conn),
			cfg.ExpirationWindow,
		)
		services.Orders = svc
		a.sweeper = order.NewSweeper(svc, cfg.SweepInterval, logger)
		a.listeners = []listener.Listener{
			listener.New[events.TicketCreated](order.QueueGroup, svc.ApplyTicketCreated),
			listener.New[events.TicketUpdated](order.QueueGroup, svc.ApplyTicketUpdated),
			listener.New[events.PaymentCreated](order.QueueGroup, svc.ApplyPaymentCreated),
		}

	case config.ServicePayments:
		if deps.Charger == nil || deps.Locker == nil {
			return nil, errors.New("payments needs a charger and a locker")
		}
		svc := payment.NewService(deps.Store, deps.Charger, deps.Locker,
			publisher.New[events.PaymentCreated](deps.Conn),
		)
		services.Payments = svc
		a.listeners = []listener.Listener{
			listener.New[events.OrderCreated](payment.QueueGroup, svc.ApplyOrderCreated),
			listener.New[events.OrderCancelled](payment.QueueGroup, svc.ApplyOrderCancelled),
		}

	default:
		return nil, fmt.Errorf("unknown service %q", cfg.Service)
	}

	a.e = api.NewEcho(logger, a.busAlive)
	handlers := api.NewHandlers(command.NewHandler(services), queries)
	api.Register(a.e, handlers, auth.NewJWTService(cfg.JWTKey, sessionTTL), cfg.Service)
	a.server = api.NewServer(a.e, cfg.HTTPAddr)

	return a, nil
}

func (a *App) busAlive() bool {
	select {
	case <-a.conn.Done():
		return false
	default:
		return true
	}
}

// Handler serves the service's HTTP API.
func (a *App) Handler() http.Handler {
	return a.e
}

// Ready is closed once every listener is subscribed.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Run subscribes the listeners, serves HTTP and, for orders, sweeps expired
// orders until ctx is cancelled or the bus connection is lost.
func (a *App) Run(ctx context.Context) error {
	defer closeAll(a.closers, a.logger)

	if err := a.runner.Start(ctx, a.conn, a.listeners...); err != nil {
		return err
	}
	close(a.ready)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.WithField("addr", a.cfg.HTTPAddr).Info("starting server")
		return a.server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := a.server.Stop(stopCtx)
		if err != nil {
			a.logger.WithError(err).Error("error stopping server")
		}
		return err
	})

	if a.sweeper != nil {
		g.Go(func() error {
			return a.sweeper.Run(ctx)
		})
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-a.conn.Done():
			a.logger.Error("[Bus] connection lost")
			return ErrBusClosed
		}
	})

	return g.Wait()
}

func closeAll(closers []func() error, logger *logrus.Entry) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.WithError(err).Warn("error closing resource")
		}
	}
}
