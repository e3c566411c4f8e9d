package db

import (
	"context"
	"fmt"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

/*
GetSqliteDialector define Sqlite GORM dialector for a vault DB file

Foreign keys are enforced, and writers wait on a locked file instead of failing at once.

	@param dbFile string - Sqlite DB file
	@return GORM sqlite dialector
*/
func GetSqliteDialector(dbFile string) gorm.Dialector {
	return sqlite.Open(fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=5000", dbFile))
}

/*
GetPostgresDialector define Postgres GORM dialector

	@param dsn string - Postgres connection DSN
	@return GORM postgres dialector
*/
func GetPostgresDialector(dsn string) gorm.Dialector {
	return postgres.Open(dsn)
}

// ConnectionOption adjusts the connection pool after the vault DB is opened
type ConnectionOption func(conn *gorm.DB) error

/*
WithMaxOpenConns cap the number of open connections to the vault DB

	@param maxConns int - connection cap; zero leaves the driver default
*/
func WithMaxOpenConns(maxConns int) ConnectionOption {
	return func(conn *gorm.DB) error {
		if maxConns <= 0 {
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(maxConns)
		return nil
	}
}

// Client hands out vault `Database` sessions, with or without a transaction
type Client interface {
	/*
		RunSQLInTransaction run raw GORM calls in one transaction. Used for schema setup.

			@param ctx context.Context - execution context
			@param coreLogic func(ctx context.Context, tx *gorm.DB) error - the callback to execute
	*/
	RunSQLInTransaction(
		ctx context.Context, coreLogic func(ctx context.Context, tx *gorm.DB) error,
	) error

	/*
		UseDatabase run read only vault store calls

			@param ctx context.Context - execution context
			@param coreLogic func(ctx context.Context, dbClient Database) error - the callback to execute
	*/
	UseDatabase(
		ctx context.Context, coreLogic func(ctx context.Context, dbClient Database) error,
	) error

	/*
		UseDatabaseInTransaction run vault store calls as one all-or-nothing unit. Any error
		returned by the callback rolls back every entity, registry and audit write it made.

			@param ctx context.Context - execution context
			@param coreLogic func(ctx context.Context, dbClient Database) error - the callback to execute
	*/
	UseDatabaseInTransaction(
		ctx context.Context, coreLogic func(ctx context.Context, dbClient Database) error,
	) error

	// Close release the underlying connection pool
	Close() error
}

// clientImpl implements Client
type clientImpl struct {
	goutils.Component
	db *gorm.DB
}

/*
NewConnection open the vault DB

	@param dbDialector gorm.Dialector - GORM dialector
	@param dbLogLevel logger.LogLevel - SQL log level
	@param opts ...ConnectionOption - connection pool adjustments
	@return new client
*/
func NewConnection(
	dbDialector gorm.Dialector, dbLogLevel logger.LogLevel, opts ...ConnectionOption,
) (Client, error) {
	logTags := log.Fields{"package": "legacyvault", "module": "db", "component": "sql-client"}

	conn, err := gorm.Open(dbDialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(dbLogLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect with DB [%w]", err)
	}
	for _, opt := range opts {
		if err := opt(conn); err != nil {
			return nil, fmt.Errorf("failed to configure DB connection pool [%w]", err)
		}
	}

	log.WithFields(logTags).WithField("dialect", dbDialector.Name()).Debug("Vault DB opened")

	return &clientImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		db: conn,
	}, nil
}

/*
RunSQLInTransaction run raw GORM calls in one transaction

	@param ctx context.Context - execution context
	@param coreLogic func(ctx context.Context, tx *gorm.DB) error - the callback to execute
*/
func (c *clientImpl) RunSQLInTransaction(
	ctx context.Context, coreLogic func(ctx context.Context, tx *gorm.DB) error,
) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return coreLogic(ctx, tx)
	})
}

/*
UseDatabase run read only vault store calls

	@param ctx context.Context - execution context
	@param coreLogic func(ctx context.Context, dbClient Database) error - the callback to execute
*/
func (c *clientImpl) UseDatabase(
	ctx context.Context, coreLogic func(ctx context.Context, dbClient Database) error,
) error {
	session, err := newDatabase(ctx, c.db.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to open vault store session [%w]", err)
	}
	return coreLogic(ctx, session)
}

/*
UseDatabaseInTransaction run vault store calls as one all-or-nothing unit

	@param ctx context.Context - execution context
	@param coreLogic func(ctx context.Context, dbClient Database) error - the callback to execute
*/
func (c *clientImpl) UseDatabaseInTransaction(
	ctx context.Context, coreLogic func(ctx context.Context, dbClient Database) error,
) error {
	err := c.RunSQLInTransaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		session, err := newDatabase(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to open vault store session [%w]", err)
		}
		return coreLogic(ctx, session)
	})
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).Debug("Vault transaction rolled back")
	}
	return err
}

// Close release the underlying connection pool
func (c *clientImpl) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access DB connection pool [%w]", err)
	}
	return sqlDB.Close()
}
