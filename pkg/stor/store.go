// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

// The stor package manages the storage of the activation authority entities.
package stor

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type (

	// generic store
	dbStore struct {
		db *gorm.DB
	}

	// entity stores
	licenseKeyStore dbStore
	activationStore dbStore
	auditStore      dbStore
	statsStore      dbStore

	// Store interface, giving access to specialized interfaces
	Store interface {
		LicenseKey() LicenseKeyRepository
		Activation() ActivationRepository
		Audit() AuditRepository
		Stats() StatsRepository
	}

	// LicenseKeyRepository interface, defining license key operations
	LicenseKeyRepository interface {
		ListAll() (*[]LicenseKey, error)
		List(pageNum, pageSize int) (*[]LicenseKey, error)
		FindByStatus(status string) (*[]LicenseKey, error)
		Count() (int64, error)
		Get(serial string) (*LicenseKey, error)
		Create(k *LicenseKey) error
		Update(k *LicenseKey) error
		Delete(k *LicenseKey) error
	}

	// ActivationRepository interface, defining activation operations
	ActivationRepository interface {
		FindActiveByKey(serial string) (*[]Activation, error)
		GetActive(serial string, hardwareID string) (*Activation, error)
		GetActiveByHardware(hardwareID string) (*Activation, error)
		CountActive(serial string) (int64, error)
		Get(uuid string) (*Activation, error)
		Create(a *Activation) error
		Update(a *Activation) error
		Reserve(a *Activation, maxInstallations int) (int, error)
		Release(serial string, hardwareID string) (*Activation, error)
	}

	// AuditRepository interface, defining audit trail operations
	AuditRepository interface {
		List(serial string) (*[]AuditEvent, error)
		Count(serial string) (int64, error)
		Create(e *AuditEvent) error
	}

	// StatsRepository interface, defining dashboard aggregations
	StatsRepository interface {
		GetStats(limitToLast12Months bool) (*StatsData, error)
		GetConflictedHardware(threshold int) ([]ConflictedHardwareData, error)
	}
)

// implementation of the different repository interfaces
func (s *dbStore) LicenseKey() LicenseKeyRepository {
	return (*licenseKeyStore)(s)
}

func (s *dbStore) Activation() ActivationRepository {
	return (*activationStore)(s)
}

func (s *dbStore) Audit() AuditRepository {
	return (*auditStore)(s)
}

// Stats implements Store.
func (s *dbStore) Stats() StatsRepository {
	return (*statsStore)(s)
}

// List of status values as strings
const (
	KEY_VALID   = "valid"
	KEY_REVOKED = "revoked"

	ACTIVATION_ACTIVE   = "active"
	ACTIVATION_INACTIVE = "inactive"

	EVENT_ACTIVATE   = "activate"
	EVENT_DEACTIVATE = "deactivate"
	EVENT_REJECT     = "reject"
)

// Typed failures of the atomic slot reservation, mapped to business
// rejections by the authority layer.
var (
	ErrCapacity      = errors.New("no installation slot available")
	ErrHardwareBound = errors.New("hardware already bound to another key")
)

// Init initializes the database
func Init(dsn string) (Store, error) {
	var err error

	dialect, cnx := dbFromURI(dsn)
	if dialect == "error" {
		return nil, fmt.Errorf("incorrect database source name: %q", dsn)
	}

	// add parameters specific to the dialect
	cnx = addParamsDialectSpecific(cnx, dialect)

	// database logger
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level (Silent, Error, Warn, Info)
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,        // Enable color
		},
	)

	db, err := gorm.Open(GormDialector(cnx), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true, // surface constraint violations as gorm.ErrDuplicatedKey
	})
	if err != nil {
		log.Printf("Failed connecting to the database: %v", err)
		return nil, err
	}

	err = performDialectSpecific(db, dialect)
	if err != nil {
		log.Printf("Failed performing dialect specific database init: %v", err)
		return nil, err
	}

	err = db.AutoMigrate(&LicenseKey{}, &Activation{}, &AuditEvent{})
	if err != nil {
		log.Printf("Failed performing database automigrate: %v", err)
		return nil, err
	}

	err = createConstraintsDialectSpecific(db, dialect)
	if err != nil {
		log.Printf("Failed creating dialect specific constraints: %v", err)
		return nil, err
	}

	stor := &dbStore{db: db}

	return stor, nil
}

// dbFromURI
func dbFromURI(uri string) (string, string) {
	parts := strings.Split(uri, "://")
	if len(parts) != 2 {
		return "error", ""
	}
	return parts[0], parts[1]
}

// addParamsDialectSpecific takes a connection string and adds parameters specific to the SQL dialect
func addParamsDialectSpecific(cnx, dialect string) string {
	switch dialect {
	case "sqlite3":
		cnx += "?cache=shared&mode=rwc"
	case "mysql":
		cnx += "?charset=utf8mb4&parseTime=True&loc=Local"
	case "postgres":
		cnx += "?sslmode=disable"
	default:
		log.Printf("Invalid dialect: %s", dialect)
	}
	return cnx
}

// performDialectSpecific
func performDialectSpecific(db *gorm.DB, dialect string) error {
	switch dialect {
	case "sqlite3":
		err := db.Exec("PRAGMA journal_mode = WAL").Error
		if err != nil {
			return err
		}
		err = db.Exec("PRAGMA foreign_keys = ON").Error
		if err != nil {
			return err
		}
		// sqlite allows a single writer; serializing at the pool level avoids
		// busy errors when activations for the same key race each other
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(1)
	case "mysql":
		// nothing , so far
	case "postgres":
		// nothing , so far
	default:
		return fmt.Errorf("invalid dialect: %s", dialect)
	}
	return nil
}

// createConstraintsDialectSpecific adds the constraints AutoMigrate cannot express.
// The unique index on active hardware ids backs the one-binding-per-machine rule:
// the row locks in Reserve only serialize reservations for the same key, and on
// mvcc backends two transactions on different keys could otherwise both insert
// an activation for the same hardware id.
func createConstraintsDialectSpecific(db *gorm.DB, dialect string) error {
	switch dialect {
	case "sqlite3", "postgres":
		return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_activations_active_hardware " +
			"ON activations(hardware_id) WHERE status = 'active'").Error
	case "mysql":
		// mysql has no partial indexes; a stored generated column carries the
		// hardware id only while the activation is active
		if !db.Migrator().HasColumn(&Activation{}, "active_hardware") {
			err := db.Exec("ALTER TABLE activations ADD COLUMN active_hardware VARCHAR(64) " +
				"GENERATED ALWAYS AS (CASE WHEN status = 'active' THEN hardware_id END) STORED").Error
			if err != nil {
				return err
			}
		}
		if !db.Migrator().HasIndex(&Activation{}, "idx_activations_active_hardware") {
			return db.Exec("CREATE UNIQUE INDEX idx_activations_active_hardware " +
				"ON activations(active_hardware)").Error
		}
	}
	return nil
}
