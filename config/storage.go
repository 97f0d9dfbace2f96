package config

import (
	"errors"
	"fmt"
	"net/url"
)

const (
	StorageBackendLevelDB = "leveldb"
	StorageBackendMongo   = "mongo"
)

type Storage struct {
	Backend string `yaml:"backend"`

	LevelDBPath string `yaml:"leveldb_path"`

	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

func (c *Storage) Preprocess() error {
	switch c.Backend {
	case StorageBackendLevelDB:
		if c.LevelDBPath == "" {
			return errors.New("leveldb storage requires a database path")
		}
	case StorageBackendMongo:
		if c.MongoURI == "" {
			return errors.New("mongo storage requires a connection uri")
		}
		if _, err := url.Parse(c.MongoURI); err != nil {
			return fmt.Errorf("invalid mongo uri: %w",
				err,
			)
		}
		if c.MongoDatabase == "" {
			return errors.New("mongo storage requires a database name")
		}
	default:
		return fmt.Errorf("unknown storage backend '%s' (must be one of: %s, %s)",
			c.Backend, StorageBackendLevelDB, StorageBackendMongo,
		)
	}
	return nil
}
