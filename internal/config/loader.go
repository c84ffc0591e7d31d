// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/awnumar/memguard"
	"gopkg.in/yaml.v3"
)

var (
	// Global is the process-wide singleton loaded by Load.
	Global Config
	once   sync.Once

	secretsMu sync.RWMutex
	secrets   = map[string]*memguard.Enclave{}
)

// Load ensures the config is loaded into the Global singleton exactly once.
// Every vendor API key found in the YAML file is sealed into a memguard
// Enclave and scrubbed from the in-memory Config immediately afterward;
// callers retrieve a key only via VendorAPIKey.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not find the user's home directory: %w", err)
	}
	configPath := filepath.Join(home, ".vitalscore", "vitalscore.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := createDefault(configPath); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse the config file: %w", err)
	}
	sealVendorKeys(&Global)

	if catalogPath, err := expandUser(home, Global.CatalogPath); err == nil {
		if _, statErr := os.Stat(catalogPath); os.IsNotExist(statErr) {
			if err := os.MkdirAll(filepath.Dir(catalogPath), 0750); err != nil {
				return fmt.Errorf("failed to create the catalog directory: %w", err)
			}
			if err := os.WriteFile(catalogPath, []byte(defaultCatalogYAML), 0640); err != nil {
				return fmt.Errorf("failed to seed the default catalog file: %w", err)
			}
		}
	}
	return nil
}

func expandUser(home, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if path[0] == '~' {
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// sealVendorKeys moves every VendorConfig.APIKey into a memguard Enclave
// keyed by vendor role, then blanks the plaintext field so it is never
// retained in the Config struct (and therefore never serialised or logged
// by accident).
func sealVendorKeys(cfg *Config) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	for role, vendor := range cfg.Vendors {
		if vendor.APIKey == "" {
			continue
		}
		secrets[role] = memguard.NewEnclave([]byte(vendor.APIKey))
		vendor.APIKey = ""
		cfg.Vendors[role] = vendor
	}
}

// VendorAPIKey opens the sealed enclave for role and returns the plaintext
// key. The caller owns the returned LockedBuffer and must call Destroy()
// when done with it so the memory is wiped.
func VendorAPIKey(role string) (*memguard.LockedBuffer, error) {
	secretsMu.RLock()
	enclave, ok := secrets[role]
	secretsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no API key configured for vendor role %q", role)
	}
	return enclave.Open()
}

// SetVendorAPIKeyForTest seals a key directly, bypassing file loading. Test
// helper only.
func SetVendorAPIKeyForTest(role, key string) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	secrets[role] = memguard.NewEnclave([]byte(key))
}

// defaultCatalogYAML seeds a fresh install with enough biomarkers to
// exercise every §4.1 code path (unit conversion, sex-specific range
// selection, critical flags) out of the box; operators replace it with
// their own reference data in production.
const defaultCatalogYAML = `
biomarkers:
  - id: glucose
    canonical_name: Glucose
    category: metabolic
    canonical_unit: mmol/L
    display_unit_preference: mg/dL
    precision: 2
    decimals_policy: fixed
  - id: ferritin
    canonical_name: Ferritin
    category: hematology
    canonical_unit: ug/L
    display_unit_preference: ug/L
    precision: 0
    decimals_policy: fixed
  - id: hscrp
    canonical_name: hs-CRP
    category: inflammation
    canonical_unit: mg/L
    display_unit_preference: mg/L
    precision: 2
    decimals_policy: fixed
  - id: hba1c
    canonical_name: Hemoglobin A1c
    category: metabolic
    canonical_unit: "%"
    display_unit_preference: "%"
    precision: 1
    decimals_policy: fixed
  - id: vitamin_d
    canonical_name: Vitamin D, 25-Hydroxy
    category: vitamin
    canonical_unit: nmol/L
    display_unit_preference: ng/mL
    precision: 1
    decimals_policy: fixed

synonyms:
  - {biomarker_id: glucose, label: Glucose}
  - {biomarker_id: glucose, label: Fasting Glucose}
  - {biomarker_id: glucose, label: Blood Glucose}
  - {biomarker_id: ferritin, label: Ferritin}
  - {biomarker_id: hscrp, label: hs-CRP}
  - {biomarker_id: hscrp, label: High Sensitivity CRP}
  - {biomarker_id: hba1c, label: HbA1c}
  - {biomarker_id: hba1c, label: Hemoglobin A1c}
  - {biomarker_id: vitamin_d, label: Vitamin D}
  - {biomarker_id: vitamin_d, label: 25-OH Vitamin D}

conversions:
  - {biomarker_id: glucose, from_unit: mg/dL, to_unit: mmol/L, kind: LINEAR, multiplier: 0.0555}
  - {biomarker_id: vitamin_d, from_unit: ng/mL, to_unit: nmol/L, kind: LINEAR, multiplier: 2.496}

ranges:
  - biomarker_id: glucose
    unit: mmol/L
    low: 3.9
    high: 5.5
    critical_low: 2.8
    critical_high: 13.9
    context: {fasting: true}
  - biomarker_id: ferritin
    unit: ug/L
    low: 15
    high: 150
    context: {sex: female}
  - biomarker_id: ferritin
    unit: ug/L
    low: 30
    high: 300
    context: {sex: male}
  - biomarker_id: hscrp
    unit: mg/L
    low: 0
    high: 3
    critical_high: 10
    context: {}
  - biomarker_id: hba1c
    unit: "%"
    low: 4
    high: 5.6
    critical_high: 6.5
    context: {}
  - biomarker_id: vitamin_d
    unit: nmol/L
    low: 50
    high: 125
    context: {}
`

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}
