package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const settingsFile = "settings.json"

var (
	settings      Settings
	settingsMutex sync.RWMutex
)

func defaultSettings() Settings {
	return Settings{
		RefreshIntervalSeconds: 300,
		AutoDownload:           false,
		DownloadDir:            "archives",
		Overwrite:              false,
		SnapshotRetention:      48,
	}
}

// currentSettings returns a copy of the active settings.
func currentSettings() Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settings
}

// refreshInterval is how long the background loop waits between refreshes.
func refreshInterval() time.Duration {
	s := currentSettings()
	if s.RefreshIntervalSeconds <= 0 {
		return time.Duration(defaultSettings().RefreshIntervalSeconds) * time.Second
	}
	return time.Duration(s.RefreshIntervalSeconds) * time.Second
}

// saveSettings saves the current settings to the settings.json file.
func saveSettings() error {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	return saveSettingsLocked()
}

// saveSettingsLocked performs the actual saving without locking the mutex.
// This is to be called from functions that already hold the lock.
func saveSettingsLocked() error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, settingsFile), data, 0644)
}

// loadSettings loads the settings from settings.json, creating it with defaults if it doesn't exist or is corrupt.
func loadSettings() {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settingsPath := filepath.Join(configDir, settingsFile)
	data, err := os.ReadFile(settingsPath)

	if err != nil {
		settings = defaultSettings()
		if os.IsNotExist(err) {
			log.Infof("Settings file not found at %s, creating with default values.", settingsPath)
			if err := saveSettingsLocked(); err != nil {
				log.Errorf("Failed to create default settings file: %v", err)
			}
		} else {
			log.Warnf("Failed to read settings file: %v. Loading default settings.", err)
		}
		return
	}

	// Start from defaults so fields missing in older files keep sane values
	loaded := defaultSettings()
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Warnf("Failed to parse settings file, please check its format. Loading default settings. Error: %v", err)
		settings = defaultSettings()
		return
	}
	settings = loaded

	log.Info("Successfully loaded settings from settings.json")
}

// applySettingsUpdate validates and applies req, then persists the result.
func applySettingsUpdate(req SettingsUpdateRequest) (Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	updated := settings
	if req.RefreshIntervalSeconds != nil {
		if *req.RefreshIntervalSeconds < 10 {
			return settings, errInvalidSetting("refresh_interval_seconds must be at least 10")
		}
		updated.RefreshIntervalSeconds = *req.RefreshIntervalSeconds
	}
	if req.AutoDownload != nil {
		updated.AutoDownload = *req.AutoDownload
	}
	if req.DownloadDir != nil {
		if *req.DownloadDir == "" {
			return settings, errInvalidSetting("download_dir must not be empty")
		}
		updated.DownloadDir = *req.DownloadDir
	}
	if req.Overwrite != nil {
		updated.Overwrite = *req.Overwrite
	}
	if req.SnapshotRetention != nil {
		if *req.SnapshotRetention < 1 {
			return settings, errInvalidSetting("snapshot_retention must be at least 1")
		}
		updated.SnapshotRetention = *req.SnapshotRetention
	}

	settings = updated
	if err := saveSettingsLocked(); err != nil {
		return settings, err
	}
	return settings, nil
}

type errInvalidSetting string

func (e errInvalidSetting) Error() string { return string(e) }
