// Package database exports measurement tables to TimescaleDB as long-format
// observation rows.
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/fluxdata/internal/log"
	"github.com/chrissnell/fluxdata/pkg/config"
	"go.uber.org/zap"
)

// Client holds the connection to a TimescaleDB database
type Client struct {
	config *config.TimescaleDBData
	DB     *gorm.DB // Exported so it can be accessed from other packages
	logger *zap.SugaredLogger
}

// NewClient creates a new database client
func NewClient(c *config.TimescaleDBData, logger *zap.SugaredLogger) *Client {
	return &Client{
		config: c,
		logger: log.OrNop(logger),
	}
}

// Connect connects to the TimescaleDB database
func (c *Client) Connect() error {
	db, err := CreateConnection(c.config.ConnectionString)
	if err != nil {
		return err
	}
	c.DB = db
	c.logger.Info("TimescaleDB connection successful")
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	if c.DB == nil {
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates the observation table, turns it into a hypertable and
// adds the daily rollup view. The TimescaleDB-specific steps only warn on
// failure so plain PostgreSQL still works.
func (c *Client) Migrate(ctx context.Context) error {
	db := c.DB.WithContext(ctx)

	c.logger.Info("migrating observation table...")
	if err := db.AutoMigrate(&Observation{}); err != nil {
		return fmt.Errorf("could not migrate %s: %w", Observation{}.TableName(), err)
	}

	for _, step := range []struct{ name, sql string }{
		{"TimescaleDB extension", createExtensionSQL},
		{"hypertable", createHypertableSQL},
		{"daily rollup view", createDailyViewSQL},
	} {
		c.logger.Infof("creating %s...", step.name)
		if err := db.Exec(step.sql).Error; err != nil {
			c.logger.Warnw("could not create "+step.name, "error", err)
		}
	}
	return nil
}

// CreateConnection is a helper function to create a database connection with standard GORM configuration
func CreateConnection(connectionString string) (*gorm.DB, error) {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	log.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warn("warning: unable to create a TimescaleDB connection:", err)
		return nil, err
	}

	return db, nil
}
