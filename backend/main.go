package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pharmacy/m/internal/api"
	"pharmacy/m/internal/auth"
	"pharmacy/m/internal/billing"
	"pharmacy/m/internal/config"
	"pharmacy/m/internal/customers"
	"pharmacy/m/internal/database"
	"pharmacy/m/internal/inventory"
	"pharmacy/m/internal/logging"
	"pharmacy/m/internal/migrations"
	"pharmacy/m/internal/reports"
	"pharmacy/m/internal/seed"
	"pharmacy/m/internal/suppliers"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	db, err := database.Connect(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("database connection failed", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Run(ctx, db); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	if err := migrations.Check(ctx, db); err != nil {
		logger.Fatal("schema check failed", zap.Error(err))
	}

	users := auth.NewService(auth.NewSQLStorage(db), auth.Options{Secret: cfg.Secret}, logger.Named("auth"))
	if err := users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Fatal("unable to create admin user", zap.Error(err))
	}
	if cfg.SeedCSV != "" {
		if _, err := seed.LoadMedicines(ctx, db, cfg.SeedCSV, logger.Named("seed")); err != nil {
			logger.Error("medicine seed failed", zap.Error(err))
		}
	}

	sales, err := billing.NewService(billing.NewSQLStorage(db), billing.Options{
		VATRate:       cfg.VATRate,
		Timeout:       cfg.DBTimeout,
		InvoicePrefix: cfg.InvoicePrefix,
		Location:      cfg.Location,
	}, logger.Named("billing"))
	if err != nil {
		logger.Fatal("billing setup failed", zap.Error(err))
	}

	handler := api.New(api.Services{
		Auth:      users,
		Customers: customers.NewService(customers.NewSQLStorage(db), customers.Options{}, logger.Named("customers")),
		Inventory: inventory.NewService(inventory.NewSQLStorage(db), inventory.Options{
			DefaultMinStockLevel: cfg.LowStockThreshold,
			ExpiryWarningDays:    cfg.ExpiryWarningDays,
			Location:             cfg.Location,
		}, logger.Named("inventory")),
		Billing: sales,
		Suppliers: suppliers.NewService(suppliers.NewSQLStorage(db), suppliers.Options{
			ReferencePrefix: cfg.POPrefix,
		}, logger.Named("suppliers")),
		Reports: reports.NewService(reports.NewSQLStorage(db), sales, reports.Options{
			ExpiryAlertDays: cfg.ExpiryWarningDays,
			Location:        cfg.Location,
		}, logger.Named("reports")),
	}, logger.Named("http"), cfg.Location, cfg.CORSOrigins)

	logger.Info("pharmacy POS server starting",
		zap.String("port", cfg.HTTPPort),
		zap.String("driver", cfg.DBDriver),
		zap.String("vat_rate", cfg.VATRate.String()),
	)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
