package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	invoiceapp "github.com/bloomwire/ordercore/internal/application/invoice"
	orderapp "github.com/bloomwire/ordercore/internal/application/order"
	walletapp "github.com/bloomwire/ordercore/internal/application/wallet"
	"github.com/bloomwire/ordercore/internal/config"
	"github.com/bloomwire/ordercore/internal/domain/buyer"
	"github.com/bloomwire/ordercore/internal/domain/catalog"
	"github.com/bloomwire/ordercore/internal/domain/invoice"
	"github.com/bloomwire/ordercore/internal/domain/ledger"
	"github.com/bloomwire/ordercore/internal/domain/order"
	"github.com/bloomwire/ordercore/internal/domain/payment"
	"github.com/bloomwire/ordercore/internal/domain/txn"
	"github.com/bloomwire/ordercore/internal/infrastructure/gateway"
	"github.com/bloomwire/ordercore/internal/infrastructure/httpapi"
	"github.com/bloomwire/ordercore/internal/infrastructure/id"
	invoiceworker "github.com/bloomwire/ordercore/internal/infrastructure/invoice/worker"
	"github.com/bloomwire/ordercore/internal/infrastructure/memory"
	"github.com/bloomwire/ordercore/internal/infrastructure/observability/oteltrace"
	"github.com/bloomwire/ordercore/internal/infrastructure/observability/prometrics"
	"github.com/bloomwire/ordercore/internal/infrastructure/observability/telemetry"
	"github.com/bloomwire/ordercore/internal/infrastructure/observability/zaplogger"
	"github.com/bloomwire/ordercore/internal/infrastructure/outbox"
	"github.com/bloomwire/ordercore/internal/infrastructure/pdf"
	"github.com/bloomwire/ordercore/internal/infrastructure/postgres"
	"github.com/bloomwire/ordercore/internal/observability"
)

// store is what both persistence backends provide: the atomic-unit runner
// plus one accessor per repository port.
type store interface {
	txn.Runner
	Products() catalog.Repository
	Buyers() buyer.Repository
	Orders() order.Repository
	Ledgers() ledger.Repository
	Payments() payment.Repository
	Invoices() invoice.Repository
}

func main() {
	cfg := config.Load()

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)

	registry := prometheus.NewRegistry()
	tel := telemetry.New(
		oteltrace.New(cfg.ServiceName),
		logger,
		prometrics.New(registry),
	)
	sysLog := tel.Logger().With(observability.F("component", "main"))

	var st store
	if cfg.DatabaseDSN != "" {
		pg, err := postgres.Open(cfg.DatabaseDSN)
		if err != nil {
			sysLog.Error("postgres_open_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer func() { _ = pg.Close() }()
		st = pg
		sysLog.Info("store_ready", observability.F("backend", "postgres"))
	} else {
		mem := memory.NewStore()
		if cfg.Env == "dev" {
			seedDev(mem)
		}
		st = mem
		sysLog.Info("store_ready", observability.F("backend", "memory"))
	}

	idGen := id.NewUUIDGenerator()
	walletLedger := ledger.New(ledger.Wallet, st.Ledgers(), idGen)
	creditLedger := ledger.New(ledger.Credit, st.Ledgers(), idGen)

	bus := outbox.NewBus(tel.Logger())
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:      cfg.GatewayBaseURL,
		ClientID:     cfg.GatewayClientID,
		ClientSecret: cfg.GatewayClientSecret,
	})

	orderService := orderapp.NewService(st.Orders(), st.Products(), creditLedger, st, idGen, bus, tel)
	walletService := walletapp.NewService(walletLedger, creditLedger, st.Payments(), gatewayClient, st, idGen, cfg.Currency, tel)
	invoiceService := invoiceapp.NewService(
		st.Invoices(), st.Orders(), st.Buyers(), st, idGen,
		pdf.NewRenderer(cfg.SellerName, cfg.SellerAddress),
		cfg.InvoicePrefix, cfg.VATRate, tel,
	)

	invoiceWorker := invoiceworker.New(bus, invoiceService, tel)
	invoiceWorker.Start()

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewHandler(orderService, walletService, invoiceService, tel)
	router := handler.Router(tel, cfg.JWTSecret)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		sysLog.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sysLog.Error("http_server_error", observability.F("error", err.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sysLog.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		sysLog.Info("http_server_stopped")
	}
}

// seedDev loads a small catalog so the API is usable out of the box.
func seedDev(mem *memory.Store) {
	mem.SeedProduct(&catalog.Product{
		ID: "rose-red", Name: "Red Naomi Rose",
		UnitPrice: decimal.NewFromFloat(20.00), StemsPerBunch: 20, AvailableQty: 500,
	})
	mem.SeedProduct(&catalog.Product{
		ID: "lily-white", Name: "White Oriental Lily",
		UnitPrice: decimal.NewFromFloat(12.50), StemsPerBunch: 10, AvailableQty: 300,
	})
	mem.SeedProduct(&catalog.Product{
		ID: "tulip-mix", Name: "Mixed Dutch Tulip",
		UnitPrice: decimal.NewFromFloat(8.75), StemsPerBunch: 50, AvailableQty: 1000,
	})
	mem.SeedProfile(&buyer.Profile{
		UserID: "buyer-1", CompanyName: "Petal & Stem Ltd",
		TaxID: "NL123456789B01", Address: "Canal Street 5, Amsterdam",
	})
}
