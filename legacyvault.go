// Package legacyvault - conditional release of secrets to beneficiaries
package legacyvault

import (
	"context"
	"fmt"

	"github.com/alwitt/legacyvault/config"
	"github.com/alwitt/legacyvault/db"
	"github.com/alwitt/legacyvault/release"
	"github.com/alwitt/legacyvault/vault"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Params vault instance parameters
type Params struct {
	// DBDialector GORM dialector
	DBDialector gorm.Dialector
	// DBLogLevel SQL log level
	DBLogLevel logger.LogLevel
	// DBMaxOpenConns connection pool cap, zero for the driver default
	DBMaxOpenConns int
	// AutoMigrate create missing tables before starting
	AutoMigrate bool
	// MinRSAKeyBits smallest ephemeral RSA key accepted during key release
	MinRSAKeyBits int
}

// Instance a running vault
type Instance struct {
	// Vault the policy engine
	Vault vault.Vault
	// KeyRelease the key release engine, gated by Vault
	KeyRelease release.Engine

	persistence db.Client
}

// Close release the instance's database connections
func (i Instance) Close() error {
	if i.persistence == nil {
		return nil
	}
	return i.persistence.Close()
}

/*
NewInstance initialize a vault instance.

Each instance is backed by a SQL database. Operations are serialized within one instance
only, so a database must not be shared by two instances.

	@param ctx context.Context - execution context
	@param params Params - instance parameters
	@returns new vault instance
*/
func NewInstance(ctx context.Context, params Params) (Instance, error) {
	// Prepare persistence
	persistence, err := db.NewConnection(
		params.DBDialector, params.DBLogLevel, db.WithMaxOpenConns(params.DBMaxOpenConns),
	)
	if err != nil {
		return Instance{}, fmt.Errorf("failed to initialized persistence client [%w]", err)
	}

	if params.AutoMigrate {
		if err := persistence.RunSQLInTransaction(ctx, db.DefineTables); err != nil {
			return Instance{}, fmt.Errorf("failed to prepare vault tables [%w]", err)
		}
	}

	policyEngine, err := vault.NewVault(ctx, persistence)
	if err != nil {
		return Instance{}, fmt.Errorf("failed to initialized policy engine [%w]", err)
	}

	keyRelease, err := release.NewEngine(release.EngineParams{
		Gate: policyEngine, MinRSAKeyBits: params.MinRSAKeyBits,
	})
	if err != nil {
		return Instance{}, fmt.Errorf("failed to initialized key release engine [%w]", err)
	}

	return Instance{Vault: policyEngine, KeyRelease: keyRelease, persistence: persistence}, nil
}

/*
NewInstanceFromConfig initialize a vault instance from configuration

	@param ctx context.Context - execution context
	@param cfg *config.VaultConfig - vault configuration
	@returns new vault instance
*/
func NewInstanceFromConfig(ctx context.Context, cfg *config.VaultConfig) (Instance, error) {
	if err := cfg.Validate(); err != nil {
		return Instance{}, err
	}
	dialector, err := cfg.Database.Dialector()
	if err != nil {
		return Instance{}, err
	}
	return NewInstance(ctx, Params{
		DBDialector:    dialector,
		DBLogLevel:     cfg.Database.LogLevel(),
		DBMaxOpenConns: cfg.Database.MaxOpenConns,
		AutoMigrate:    cfg.Database.AutoMigrate,
		MinRSAKeyBits:  cfg.KeyRelease.MinRSAKeyBits,
	})
}
