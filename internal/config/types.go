package config

// Config is the root configuration of the execution core.
type Config struct {
	App      AppConfig      `toml:"app"`
	Broker   BrokerConfig   `toml:"broker"`
	Store    StoreConfig    `toml:"store"`
	Roll     RollConfig     `toml:"roll"`
	Handlers HandlersConfig `toml:"handlers"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	HTTPAddr    string `toml:"http_addr"`
	LogPath     string `toml:"log_path"`
	JournalPath string `toml:"journal_path"`
}

// BrokerConfig selects and parameterizes the venue connection.
type BrokerConfig struct {
	Kind           string        `toml:"kind"` // "paper" | "binance"
	TimeoutSeconds int           `toml:"timeout_seconds"`
	Paper          PaperConfig   `toml:"paper"`
	Binance        BinanceConfig `toml:"binance"`
}

type PaperConfig struct {
	ScriptPath string `toml:"script_path"`
}

type BinanceConfig struct {
	APIKey          string `toml:"api_key"`
	APISecret       string `toml:"api_secret"`
	RESTBaseURL     string `toml:"rest_base_url"`
	ProxyEnabled    bool   `toml:"proxy_enabled"`
	RESTProxyURL    string `toml:"rest_proxy_url"`
	FillPollSeconds int    `toml:"fill_poll_seconds"`
}

type StoreConfig struct {
	ArchivePath  string `toml:"archive_path"`
	EventLogPath string `toml:"eventlog_path"`
}

type RollConfig struct {
	CalendarPath string `toml:"calendar_path"`
}

// HandlersConfig holds each handler's polling cadence ("5s", "1m", ...).
type HandlersConfig struct {
	SpawnInterval     string `toml:"spawn_interval"`
	SubmitInterval    string `toml:"submit_interval"`
	RollInterval      string `toml:"roll_interval"`
	ReconcileInterval string `toml:"reconcile_interval"`
	ArchiveInterval   string `toml:"archive_interval"`
}
