package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/derby/internal/domain"
)

// Config es la configuración completa del motor y sus adapters.
type Config struct {
	Race        RaceConfig        `yaml:"race"`
	Chain       ChainConfig       `yaml:"chain"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
	Events      EventsConfig      `yaml:"events"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Keeper      KeeperConfig      `yaml:"keeper"`
	Probability ProbabilityConfig `yaml:"probability"`
	Sim         SimConfig         `yaml:"sim"`
}

// RaceConfig son los parámetros del ciclo de vida y del odds engine.
// Las ventanas se miden en puntos de ledger-time (bloques).
type RaceConfig struct {
	Contract   string `yaml:"contract"`
	OddsRole   string `yaml:"odds_role"`
	Operator   string `yaml:"operator"`
	HouseOwner string `yaml:"house_owner"`

	HouseCompetitors []uint64 `yaml:"house_competitors"`

	OddsWindow    uint64 `yaml:"odds_window"`
	BettingWindow uint64 `yaml:"betting_window"`
	Cooldown      uint64 `yaml:"cooldown"`

	MaxStake      uint64 `yaml:"max_stake"`
	QueueCapacity int    `yaml:"queue_capacity"` // 0 = sin límite

	HouseEdgeBps uint64       `yaml:"house_edge_bps"`
	MinOddsBps   uint64       `yaml:"min_odds_bps"`
	MaxOddsBps   uint64       `yaml:"max_odds_bps"`
	FallbackOdds FallbackOdds `yaml:"fallback_odds"` // 0 = cuota plana calculada

	PayoutModel string `yaml:"payout_model"` // fixed | parimutuel
	Generation  string `yaml:"generation"`   // rejection | tick
}

// FallbackOdds fija la cuota plana por mercado, en bps.
type FallbackOdds struct {
	Win   uint64 `yaml:"win"`
	Place uint64 `yaml:"place"`
	Show  uint64 `yaml:"show"`
}

// ChainConfig elige reloj y fuente de entropía.
type ChainConfig struct {
	Mode          string  `yaml:"mode"` // sim | ethereum
	RPCURL        string  `yaml:"rpc_url"`
	RPCRate       float64 `yaml:"rpc_rate"` // requests/s contra el nodo
	EntropyWindow uint64  `yaml:"entropy_window"`

	// Solo modo sim.
	Genesis         string `yaml:"genesis"`
	StartHeight     uint64 `yaml:"start_height"`
	BlockIntervalMs int    `yaml:"block_interval_ms"`
}

// StorageConfig controla dónde se persiste el ledger.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, ":memory:" o "memory" para el store en memoria
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// EventsConfig controla a dónde van los eventos del ciclo de vida.
type EventsConfig struct {
	Log     bool     `yaml:"log"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MetricsConfig controla el endpoint de Prometheus ("" = desactivado).
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// KeeperConfig controla el loop del operador off-chain.
type KeeperConfig struct {
	IntervalSeconds int     `yaml:"interval_seconds"`
	RatePerSecond   float64 `yaml:"rate_per_second"`
	Burst           int     `yaml:"burst"`
	Identity        string  `yaml:"identity"`
	PublishOdds     bool    `yaml:"publish_odds"`
	CancelStuck     bool    `yaml:"cancel_stuck"`
}

// ProbabilityConfig elige la fuente de probabilidades del odds engine.
type ProbabilityConfig struct {
	Mode      string `yaml:"mode"` // none | montecarlo | table
	Samples   int    `yaml:"samples"`
	Workers   int    `yaml:"workers"`
	TablePath string `yaml:"table_path"`
}

// SimConfig siembra el registro y el bankroll en memoria.
type SimConfig struct {
	Bankroll    uint64             `yaml:"bankroll"`
	Competitors []CompetitorConfig `yaml:"competitors"`
	Deposits    map[string]uint64  `yaml:"deposits"`
}

// CompetitorConfig es un competidor del registro en memoria.
type CompetitorConfig struct {
	ID    uint64   `yaml:"id"`
	Owner string   `yaml:"owner"`
	Stats [3]uint8 `yaml:"stats"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// KeeperInterval devuelve el intervalo del keeper como time.Duration.
func (c *Config) KeeperInterval() time.Duration {
	return time.Duration(c.Keeper.IntervalSeconds) * time.Second
}

// BlockInterval es el tiempo entre bloques de la cadena simulada.
func (c *Config) BlockInterval() time.Duration {
	return time.Duration(c.Chain.BlockIntervalMs) * time.Millisecond
}

// OddsConfig traduce la sección race a la configuración del odds engine.
func (r RaceConfig) OddsConfig() domain.OddsConfig {
	return domain.OddsConfig{
		HouseEdgeBps: r.HouseEdgeBps,
		MinOddsBps:   r.MinOddsBps,
		MaxOddsBps:   r.MaxOddsBps,
		Fallback:     [domain.BetTypeCount]uint64{r.FallbackOdds.Win, r.FallbackOdds.Place, r.FallbackOdds.Show},
	}
}

// Address convierte una dirección hex de la config.
func Address(s string) common.Address { return common.HexToAddress(s) }

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DERBY_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("DERBY_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("DERBY_KAFKA_BROKERS"); v != "" {
		cfg.Events.Brokers = strings.Split(v, ",")
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	def := domain.DefaultOddsConfig()
	if cfg.Race.OddsWindow == 0 {
		cfg.Race.OddsWindow = 20
	}
	if cfg.Race.BettingWindow == 0 {
		cfg.Race.BettingWindow = 30
	}
	if cfg.Race.Cooldown == 0 {
		cfg.Race.Cooldown = 5
	}
	if cfg.Race.HouseEdgeBps == 0 {
		cfg.Race.HouseEdgeBps = def.HouseEdgeBps
	}
	if cfg.Race.MinOddsBps == 0 {
		cfg.Race.MinOddsBps = def.MinOddsBps
	}
	if cfg.Race.MaxOddsBps == 0 {
		cfg.Race.MaxOddsBps = def.MaxOddsBps
	}
	if cfg.Race.PayoutModel == "" {
		cfg.Race.PayoutModel = "fixed"
	}
	if cfg.Race.Generation == "" {
		cfg.Race.Generation = "tick"
	}
	if cfg.Chain.Mode == "" {
		cfg.Chain.Mode = "sim"
	}
	if cfg.Chain.EntropyWindow == 0 {
		cfg.Chain.EntropyWindow = 256
	}
	if cfg.Chain.RPCRate <= 0 {
		cfg.Chain.RPCRate = 5
	}
	if cfg.Chain.BlockIntervalMs <= 0 {
		cfg.Chain.BlockIntervalMs = 1000
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "derby.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = "derby.events"
	}
	if cfg.Keeper.IntervalSeconds <= 0 {
		cfg.Keeper.IntervalSeconds = 5
	}
	if cfg.Keeper.Burst <= 0 {
		cfg.Keeper.Burst = 1
	}
	if cfg.Probability.Mode == "" {
		cfg.Probability.Mode = "none"
	}
}

// Validate rechaza configuraciones que el motor no puede servir.
func (c *Config) Validate() error {
	r := c.Race
	if r.HouseEdgeBps > domain.MaxHouseEdgeBps {
		return fmt.Errorf("config.Validate: house_edge_bps %d above cap %d", r.HouseEdgeBps, domain.MaxHouseEdgeBps)
	}
	if len(r.HouseCompetitors) < domain.LaneCount {
		return fmt.Errorf("config.Validate: %d house competitors, need at least %d", len(r.HouseCompetitors), domain.LaneCount)
	}
	if r.MinOddsBps <= domain.Scale {
		return fmt.Errorf("config.Validate: min_odds_bps %d must be above 1.0x", r.MinOddsBps)
	}
	if r.MaxOddsBps < r.MinOddsBps {
		return fmt.Errorf("config.Validate: max_odds_bps %d below min_odds_bps %d", r.MaxOddsBps, r.MinOddsBps)
	}
	if err := domain.ValidateOddsConfig(r.OddsConfig()); err != nil {
		return fmt.Errorf("config.Validate: race odds: %w", err)
	}
	if _, err := domain.ParsePayoutModel(r.PayoutModel); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}
	if _, err := domain.ParseGeneration(r.Generation); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}
	for name, addr := range map[string]string{
		"odds_role":   r.OddsRole,
		"operator":    r.Operator,
		"house_owner": r.HouseOwner,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("config.Validate: race.%s %q is not an address", name, addr)
		}
	}

	switch c.Chain.Mode {
	case "sim":
	case "ethereum":
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("config.Validate: chain.rpc_url required in ethereum mode")
		}
	default:
		return fmt.Errorf("config.Validate: unknown chain.mode %q", c.Chain.Mode)
	}

	switch c.Probability.Mode {
	case "none", "montecarlo":
	case "table":
		if c.Probability.TablePath == "" {
			return fmt.Errorf("config.Validate: probability.table_path required in table mode")
		}
	default:
		return fmt.Errorf("config.Validate: unknown probability.mode %q", c.Probability.Mode)
	}
	return nil
}
