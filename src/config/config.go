package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

// MomoConfig carries the wallet gateway credentials and endpoints.
// Defaults are the public UAT sandbox values so a local run works
// without any env setup.
type MomoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	CreatePath  string
	RedirectURL string
	IPNURL      string
	RequestType string
}

func GetMomoConfig() MomoConfig {
	cfg := MomoConfig{
		PartnerCode: envOr("MOMO_PARTNER_CODE", "MOMO"),
		AccessKey:   envOr("MOMO_ACCESS_KEY", "F8BBA842ECF85"),
		SecretKey:   envOr("MOMO_SECRET_KEY", "K951B6PE1waDMi640xX08PD3vg6EkVlz"),
		Endpoint:    envOr("MOMO_ENDPOINT", "https://test-payment.momo.vn"),
		CreatePath:  envOr("MOMO_CREATE_PATH", "/v2/gateway/api/create"),
		RequestType: envOr("MOMO_REQUEST_TYPE", "captureWallet"),
	}
	base := envOr("BASE_URL", "http://localhost:5000")
	cfg.RedirectURL = envOr("MOMO_REDIRECT_URL", base+"/api/v1/orders/momo/return")
	cfg.IPNURL = envOr("MOMO_IPN_URL", cfg.RedirectURL)
	return cfg
}

// CreateURL is the full create-payment endpoint. MOMO_FULL_CREATE_URL
// overrides it so tests can point the client at a local server.
func (c MomoConfig) CreateURL() string {
	if full := os.Getenv("MOMO_FULL_CREATE_URL"); full != "" {
		return full
	}
	return c.Endpoint + c.CreatePath
}

// OrderTTL is how long an unpaid order stays payable.
func OrderTTL() time.Duration {
	mins, err := strconv.Atoi(os.Getenv("ORDER_EXPIRE_MIN"))
	if err != nil || mins <= 0 {
		mins = 15
	}
	return time.Duration(mins) * time.Minute
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
