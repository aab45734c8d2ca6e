package config

import (
	"os"
	"strconv"
)

// Config is the process configuration, read once at startup from the
// environment. An empty DatabaseDSN selects the in-memory store.
type Config struct {
	Addr        string
	Env         string
	ServiceName string

	DatabaseDSN string
	JWTSecret   string

	GatewayBaseURL      string
	GatewayClientID     string
	GatewayClientSecret string

	Currency      string
	InvoicePrefix string
	VATRate       int64

	SellerName    string
	SellerAddress string
}

func Load() Config {
	return Config{
		Addr:        getenv("ADDR", ":8080"),
		Env:         getenv("ENV", "dev"),
		ServiceName: getenv("SERVICE_NAME", "ordercore"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),
		JWTSecret:   getenv("JWT_SECRET", "dev-secret"),

		GatewayBaseURL:      getenv("GATEWAY_BASE_URL", "https://gateway.example.com"),
		GatewayClientID:     os.Getenv("GATEWAY_CLIENT_ID"),
		GatewayClientSecret: os.Getenv("GATEWAY_CLIENT_SECRET"),

		Currency:      getenv("CURRENCY", "USD"),
		InvoicePrefix: getenv("INVOICE_PREFIX", "INV"),
		VATRate:       getenvInt64("VAT_RATE", 18),

		SellerName:    getenv("SELLER_NAME", "Bloomwire Wholesale B.V."),
		SellerAddress: getenv("SELLER_ADDRESS", "Flower Auction Road 1, Aalsmeer"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
