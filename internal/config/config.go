package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Flow struct {
		APIURL    string `yaml:"api_url"`
		APIKey    string `yaml:"api_key"`
		SecretKey string `yaml:"secret_key"`
	} `yaml:"flow"`
	URLs struct {
		PublicBaseURL   string `yaml:"public_base_url"`
		DownloadBaseURL string `yaml:"download_base_url"`
	} `yaml:"urls"`
	Product struct {
		File     string `yaml:"file"`
		Subject  string `yaml:"subject"`
		Currency string `yaml:"currency"`
		Amount   int64  `yaml:"amount"`
	} `yaml:"product"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// No file is fine, everything can come from the environment.
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("FLOW_API_URL"); v != "" {
		cfg.Flow.APIURL = v
	}
	if v := os.Getenv("FLOW_API_KEY"); v != "" {
		cfg.Flow.APIKey = v
	}
	if v := os.Getenv("FLOW_SECRET_KEY"); v != "" {
		cfg.Flow.SecretKey = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.URLs.PublicBaseURL = v
	}
	if v := os.Getenv("DOWNLOAD_BASE_URL"); v != "" {
		cfg.URLs.DownloadBaseURL = v
	}
	if v := os.Getenv("PRODUCT_FILE"); v != "" {
		cfg.Product.File = v
	}
	if v := os.Getenv("PRODUCT_SUBJECT"); v != "" {
		cfg.Product.Subject = v
	}
	if v := os.Getenv("PRODUCT_CURRENCY"); v != "" {
		cfg.Product.Currency = v
	}
	if v := os.Getenv("PRODUCT_AMOUNT"); v != "" {
		cfg.Product.Amount = atoi64Or(cfg.Product.Amount, v)
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		cfg.SMTP.Port = atoiOr(cfg.SMTP.Port, v)
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.SMTP.User = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.SMTP.From = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Flow.APIURL == "" {
		cfg.Flow.APIURL = "https://sandbox.flow.cl/api"
	}
	cfg.Flow.APIURL = strings.TrimRight(cfg.Flow.APIURL, "/")
	cfg.URLs.PublicBaseURL = strings.TrimRight(cfg.URLs.PublicBaseURL, "/")
	if cfg.URLs.DownloadBaseURL == "" {
		cfg.URLs.DownloadBaseURL = cfg.URLs.PublicBaseURL
	}
	cfg.URLs.DownloadBaseURL = strings.TrimRight(cfg.URLs.DownloadBaseURL, "/")
	if cfg.Product.File == "" {
		cfg.Product.File = "products/pack_ia_pymes_2026.zip"
	}
	if cfg.Product.Subject == "" {
		cfg.Product.Subject = "Pack IA para PYMES 2026"
	}
	if cfg.Product.Currency == "" {
		cfg.Product.Currency = "CLP"
	}
	if cfg.Product.Amount == 0 {
		cfg.Product.Amount = 350
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.User
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
