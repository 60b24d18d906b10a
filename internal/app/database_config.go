package app

import (
	"strings"

	"github.com/charlesng35/bloggers/internal/database"
)

// RelationalConfig converts DatabaseConfig into gorm connection parameters.
func (c DatabaseConfig) RelationalConfig() database.Config {
	cfg := database.Config{
		Driver: strings.ToLower(c.Driver),
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var creds DBAuthConfig
	switch cfg.Driver {
	case "postgres", "postgresql":
		creds = c.Postgres
	case "mysql", "mariadb":
		creds = c.MySQL
	default:
		return cfg
	}

	cfg.Host = creds.Host
	cfg.Port = creds.Port
	cfg.Name = creds.Database
	cfg.User = creds.Username
	cfg.Password = creds.Password
	return cfg
}

// MongoConnection converts the mongo section into the database package representation.
func (c DatabaseConfig) MongoConnection() database.MongoConfig {
	return database.MongoConfig{
		URI:            strings.TrimSpace(c.Mongo.URI),
		Database:       strings.TrimSpace(c.Mongo.Database),
		ConnectTimeout: c.Mongo.ConnectTimeout,
	}
}
