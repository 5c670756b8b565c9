package sqlite

// Config contains SQLite ledger configuration.
type Config struct {
	Path        string `env:"SQLITE_PATH"            envDefault:"data/roomgen.db"`
	BusyTimeout int    `env:"SQLITE_BUSY_TIMEOUT_MS" envDefault:"5000"`
}
