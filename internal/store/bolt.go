package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/invoiceai/invoice-parser/internal/common"
	"github.com/invoiceai/invoice-parser/internal/export"
)

const (
	nomenclatureBucket = "nomenclatures"
	exportConfigBucket = "export_config"

	exportConfigKey = "columns"
)

// Store persists the pieces that outlive a processing batch: the raw
// nomenclature text per warehouse and the export column configuration.
type Store interface {
	// SaveNomenclature stores the raw delimited nomenclature text for a
	// warehouse, replacing any previous upload wholesale.
	SaveNomenclature(warehouseID, rawText string) error

	// GetNomenclature retrieves the stored nomenclature text for a warehouse.
	// Returns common.ErrNotFound when none was uploaded yet.
	GetNomenclature(warehouseID string) (string, error)

	// SaveExportColumns stores the export column configuration.
	SaveExportColumns(cols []export.Column) error

	// GetExportColumns retrieves the stored configuration, falling back to
	// the default template when none was saved.
	GetExportColumns() ([]export.Column, error)

	// Close closes the underlying database.
	Close() error
}

// BoltStore implements Store using bbolt.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(nomenclatureBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(exportConfigBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (b *BoltStore) SaveNomenclature(warehouseID, rawText string) error {
	if warehouseID == "" {
		return common.ErrInvalidInput
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(nomenclatureBucket)).Put([]byte(warehouseID), []byte(rawText))
	})
}

func (b *BoltStore) GetNomenclature(warehouseID string) (string, error) {
	var raw []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(nomenclatureBucket)).Get([]byte(warehouseID))
		if data == nil {
			return common.ErrNotFound
		}
		raw = append(raw, data...)
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (b *BoltStore) SaveExportColumns(cols []export.Column) error {
	data, err := json.Marshal(cols)
	if err != nil {
		return fmt.Errorf("marshaling export columns: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(exportConfigBucket)).Put([]byte(exportConfigKey), data)
	})
}

func (b *BoltStore) GetExportColumns() ([]export.Column, error) {
	var cols []export.Column
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(exportConfigBucket)).Get([]byte(exportConfigKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &cols)
	})
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return export.DefaultColumns(), nil
	}
	return cols, nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
