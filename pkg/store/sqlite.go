/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	glogger "gorm.io/gorm/logger"

	"github.com/carverauto/castbridge/pkg/models"
)

var errDeviceIDRequired = errors.New("device id is required")

// SQLiteStore implements Store on a local sqlite database.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) the credential database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open credential database: %w", err)
	}

	if err := db.AutoMigrate(&DeviceCredential{}, &FavoriteRecord{}); err != nil {
		return nil, fmt.Errorf("migrate credential database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadDevices(ctx context.Context) ([]StoredDevice, error) {
	var rows []DeviceCredential

	if err := s.db.WithContext(ctx).Order("device_id, protocol").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}

	byID := make(map[string]*StoredDevice)

	var order []string

	for _, row := range rows {
		dev, ok := byID[row.DeviceID]
		if !ok {
			dev = &StoredDevice{
				DeviceID:    row.DeviceID,
				Name:        row.Name,
				Address:     row.Address,
				Credentials: make(map[models.Protocol]string),
			}
			byID[row.DeviceID] = dev
			order = append(order, row.DeviceID)
		}

		dev.Credentials[models.Protocol(row.Protocol)] = row.Credential
	}

	out := make([]StoredDevice, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}

	return out, nil
}

func (s *SQLiteStore) SaveProtocolCredential(ctx context.Context, deviceID string, protocol models.Protocol, name, address, credential string) error {
	if deviceID == "" {
		return errDeviceIDRequired
	}

	row := DeviceCredential{
		DeviceID:   deviceID,
		Protocol:   string(protocol),
		Name:       name,
		Address:    address,
		Credential: credential,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}, {Name: "protocol"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save credential for %s/%s: %w", deviceID, protocol, err)
	}

	return nil
}

func (s *SQLiteStore) Credentials(ctx context.Context, deviceID string) (map[models.Protocol]string, error) {
	var rows []DeviceCredential

	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load credentials for %s: %w", deviceID, err)
	}

	creds := make(map[models.Protocol]string, len(rows))
	for _, row := range rows {
		creds[models.Protocol(row.Protocol)] = row.Credential
	}

	return creds, nil
}

func (s *SQLiteStore) DeleteDevice(ctx context.Context, deviceID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", deviceID).Delete(&DeviceCredential{}).Error; err != nil {
			return fmt.Errorf("delete credentials for %s: %w", deviceID, err)
		}

		if err := tx.Where("device_id = ?", deviceID).Delete(&FavoriteRecord{}).Error; err != nil {
			return fmt.Errorf("delete favorites for %s: %w", deviceID, err)
		}

		return nil
	})
}

func (s *SQLiteStore) LoadFavorites(ctx context.Context, deviceID string) ([]models.FavoriteApp, error) {
	var rows []FavoriteRecord

	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load favorites for %s: %w", deviceID, err)
	}

	out := make([]models.FavoriteApp, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.FavoriteApp{
			DeviceID: row.DeviceID,
			BundleID: row.BundleID,
			Name:     row.Name,
			IconURL:  row.IconURL,
		})
	}

	return out, nil
}

func (s *SQLiteStore) SetFavorite(ctx context.Context, deviceID, bundleID, name, iconURL string, isFavorite bool) error {
	if !isFavorite {
		err := s.db.WithContext(ctx).
			Where("device_id = ? AND bundle_id = ?", deviceID, bundleID).
			Delete(&FavoriteRecord{}).Error
		if err != nil {
			return fmt.Errorf("remove favorite %s/%s: %w", deviceID, bundleID, err)
		}

		return nil
	}

	row := FavoriteRecord{
		DeviceID: deviceID,
		BundleID: bundleID,
		Name:     name,
		IconURL:  iconURL,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}, {Name: "bundle_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save favorite %s/%s: %w", deviceID, bundleID, err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
