// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

// The local package manages the storage of the desktop-side entitlement
// state: the transaction counter, the preloaded offline keys and the queue
// of temporary grants awaiting reconciliation.
// The local store is always sqlite; it ships inside the installed application.
package local

import (
	"os"
	"time"

	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type (

	// generic store
	dbStore struct {
		db *gorm.DB
	}

	// entity stores
	entitlementStore dbStore
	preloadedStore   dbStore
	queueStore       dbStore

	// Store interface, giving access to specialized interfaces
	Store interface {
		Entitlement() EntitlementRepository
		Preloaded() PreloadedRepository
		Queue() QueueRepository
	}

	// EntitlementRepository handles the single entitlement row
	EntitlementRepository interface {
		Get() (*Entitlement, error)
		Update(e *Entitlement) error
		Reset() error
	}

	// PreloadedRepository handles the offline key directory
	PreloadedRepository interface {
		Get(serialNumber string) (*PreloadedKey, error)
		ListValid() (*[]PreloadedKey, error)
		Upsert(k *PreloadedKey) error
		Count() (int64, error)
	}

	// QueueRepository handles the validation queue
	QueueRepository interface {
		Pending() (*[]QueueEntry, error)
		Create(q *QueueEntry) error
		Update(q *QueueEntry) error
		Clear() error
	}
)

// implementation of the different repository interfaces
func (s *dbStore) Entitlement() EntitlementRepository {
	return (*entitlementStore)(s)
}

func (s *dbStore) Preloaded() PreloadedRepository {
	return (*preloadedStore)(s)
}

func (s *dbStore) Queue() QueueRepository {
	return (*queueStore)(s)
}

// License status values of the local entitlement
const (
	LIC_TRIAL     = "trial"
	LIC_ACTIVATED = "activated"

	QUEUE_PENDING    = "pending"
	QUEUE_RECONCILED = "reconciled"
	QUEUE_FAILED     = "failed"
)

// Init initializes the local database
func Init(dsn string) (Store, error) {

	// database logger
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		log.Printf("Failed connecting to the local database: %v", err)
		return nil, err
	}

	if err = db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return nil, err
	}

	// the agent runs in a single process; one connection is enough and
	// avoids sqlite writer contention
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&Entitlement{}, &PreloadedKey{}, &QueueEntry{})
	if err != nil {
		log.Printf("Failed performing local database automigrate: %v", err)
		return nil, err
	}

	stor := &dbStore{db: db}

	return stor, nil
}
