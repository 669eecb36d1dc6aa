package clickhouse

type Config struct {
	Addr     string `yaml:"addr"`
	DB       string `yaml:"db"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
	// MaxOpenConns defaults to 5.
	MaxOpenConns int `yaml:"max_open_conns"`
	// RetentionDays adds a TTL on received_at when positive.
	RetentionDays int `yaml:"retention_days"`
}
