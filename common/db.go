package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vatsuok/config"
)

// ConnectDb opens the configured database. SQLite connections get foreign
// keys switched on so the posts.author_id restriction is enforced. Driver
// errors are translated, so a unique violation is gorm.ErrDuplicatedKey.
func ConnectDb(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DBDSN)
	default:
		dialector = sqlite.Open(sqliteDSN(cfg.DBDSN))
	}

	gormLogger := logger.New(&log, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.DBDriver, err)
	}

	log.Info().Str("driver", cfg.DBDriver).Msg("database connected")
	return db, nil
}

// sqliteDSN adds the connection options the app relies on unless the DSN
// already sets them. Immediate transactions take the write lock at BEGIN, so
// concurrent writers wait out the busy timeout instead of failing on upgrade.
func sqliteDSN(dsn string) string {
	options := []struct {
		keys  []string
		value string
	}{
		{[]string{"_foreign_keys", "_fk"}, "_foreign_keys=on"},
		{[]string{"_txlock"}, "_txlock=immediate"},
		{[]string{"_busy_timeout", "_timeout"}, "_busy_timeout=5000"},
	}
	for _, opt := range options {
		if hasAny(dsn, opt.keys) {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + opt.value
	}
	return dsn
}

func hasAny(dsn string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(dsn, k+"=") {
			return true
		}
	}
	return false
}
