package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const heliusRPC = "https://mainnet.helius-rpc.com/?api-key="

// Config es la configuración completa del bot.
type Config struct {
	Solana  SolanaConfig  `yaml:"solana"`
	Token   TokenConfig   `yaml:"token"`
	Engine  EngineConfig  `yaml:"engine"`
	Market  MarketConfig  `yaml:"market"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// SolanaConfig controla el acceso al ledger.
type SolanaConfig struct {
	RPCURL            string  `yaml:"rpc_url"`
	PrivateKey        string  `yaml:"private_key"` // base-58, normalmente vía DEV_PRIVATE_KEY
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// TokenConfig identifica el token y la wallet del equipo.
type TokenConfig struct {
	Mint       string `yaml:"mint"`
	TeamWallet string `yaml:"team_wallet"`
}

// EngineConfig controla el ciclo de sorteo.
type EngineConfig struct {
	CycleInterval         time.Duration `yaml:"cycle_interval"`
	MarketInterval        time.Duration `yaml:"market_interval"`
	StartupDelay          time.Duration `yaml:"startup_delay"`
	MinBalanceSOL         float64       `yaml:"min_balance_sol"`
	DistributableFraction float64       `yaml:"distributable_fraction"` // el resto queda para fees de red
	CollaboratorTimeout   time.Duration `yaml:"collaborator_timeout"`
	Exclude               []string      `yaml:"exclude"` // owners que nunca ganan, además de la wallet propia y la del equipo
}

// MarketConfig controla el proveedor de datos de mercado.
type MarketConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// APIConfig controla el servidor HTTP de lectura.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, ":memory:", o vacío para desactivar
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML. Un path vacío o
// inexistente deja solo entorno y defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SOLANA_RPC_URL")); v != "" {
		cfg.Solana.RPCURL = v
	} else if v := strings.TrimSpace(os.Getenv("HELIUS_API_KEY")); v != "" && cfg.Solana.RPCURL == "" {
		cfg.Solana.RPCURL = heliusRPC + v
	}
	if v := strings.TrimSpace(os.Getenv("DEV_PRIVATE_KEY")); v != "" {
		cfg.Solana.PrivateKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TOKEN_MINT")); v != "" {
		cfg.Token.Mint = v
	}
	if v := strings.TrimSpace(os.Getenv("TEAM_WALLET")); v != "" {
		cfg.Token.TeamWallet = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.API.Addr = "0.0.0.0:" + v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Solana.RequestsPerSecond <= 0 {
		cfg.Solana.RequestsPerSecond = 5
	}
	if cfg.Engine.CycleInterval <= 0 {
		cfg.Engine.CycleInterval = 5 * time.Minute
	}
	if cfg.Engine.MarketInterval <= 0 {
		cfg.Engine.MarketInterval = 30 * time.Second
	}
	if cfg.Engine.StartupDelay <= 0 {
		cfg.Engine.StartupDelay = 5 * time.Second
	}
	if cfg.Engine.MinBalanceSOL <= 0 {
		cfg.Engine.MinBalanceSOL = 0.01
	}
	if cfg.Engine.DistributableFraction == 0 {
		cfg.Engine.DistributableFraction = 0.9
	}
	if cfg.Engine.CollaboratorTimeout <= 0 {
		cfg.Engine.CollaboratorTimeout = 20 * time.Second
	}
	if cfg.Market.BaseURL == "" {
		cfg.Market.BaseURL = "https://api.dexscreener.com"
	}
	if cfg.Market.Timeout <= 0 {
		cfg.Market.Timeout = 5 * time.Second
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = "0.0.0.0:3000"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "holderpot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate comprueba credenciales y parámetros. Los errores envuelven
// domain.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	if c.Solana.RPCURL == "" {
		errs = append(errs, errors.New("solana.rpc_url is required (SOLANA_RPC_URL or HELIUS_API_KEY)"))
	}
	if c.Solana.PrivateKey == "" {
		errs = append(errs, errors.New("solana.private_key is required (DEV_PRIVATE_KEY)"))
	} else if _, err := solana.PrivateKeyFromBase58(c.Solana.PrivateKey); err != nil {
		errs = append(errs, errors.New("solana.private_key is not a base-58 keypair"))
	}
	if err := checkAccount("token.mint", c.Token.Mint); err != nil {
		errs = append(errs, err)
	}
	if err := checkAccount("token.team_wallet", c.Token.TeamWallet); err != nil {
		errs = append(errs, err)
	}
	for i, acc := range c.Engine.Exclude {
		if err := checkAccount("engine.exclude["+strconv.Itoa(i)+"]", acc); err != nil {
			errs = append(errs, err)
		}
	}
	if f := c.Engine.DistributableFraction; f <= 0 || f > 1 {
		errs = append(errs, fmt.Errorf("engine.distributable_fraction must be in (0,1], got %v", f))
	}
	if c.Engine.MarketInterval < time.Second || c.Engine.CycleInterval < time.Second {
		errs = append(errs, errors.New("engine intervals must be at least 1s"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config.Validate: %w: %w", domain.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

func checkAccount(key, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", key)
	}
	if _, err := solana.PublicKeyFromBase58(v); err != nil {
		return fmt.Errorf("%s: %q is not a base-58 public key", key, v)
	}
	return nil
}

// MinBalanceLamports devuelve el mínimo para sortear en lamports.
func (c *Config) MinBalanceLamports() decimal.Decimal {
	return domain.SOLToLamports(decimal.NewFromFloat(c.Engine.MinBalanceSOL))
}

// Fraction devuelve la fracción distribuible como decimal.
func (c *Config) Fraction() decimal.Decimal {
	return decimal.NewFromFloat(c.Engine.DistributableFraction)
}

// Excluded devuelve los owners excluidos configurados.
func (c *Config) Excluded() []domain.Account {
	out := make([]domain.Account, 0, len(c.Engine.Exclude)+1)
	if c.Token.TeamWallet != "" {
		out = append(out, domain.Account(c.Token.TeamWallet))
	}
	for _, e := range c.Engine.Exclude {
		out = append(out, domain.Account(e))
	}
	return out
}
