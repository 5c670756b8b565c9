package mongodb

import "time"

// Config contains MongoDB ledger configuration.
type Config struct {
	URI            string        `env:"MONGO_URI"             envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"MONGO_DB"              envDefault:"roomgen"`
	Collection     string        `env:"MONGO_COLLECTION"      envDefault:"cost_entries"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
}
