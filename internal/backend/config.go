package backend

import (
	"fmt"

	"finscope/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	loc, err := appConfig.Location()
	if err != nil {
		return Config{}, fmt.Errorf("load timezone: %w", err)
	}

	return Config{
		Type:     backendType,
		Location: loc,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		GoogleSpreadsheetID:       appConfig.GoogleSpreadsheetID,
		GoogleSheetName:           appConfig.GoogleSheetName,
		GoogleCategoriesSheetName: appConfig.GoogleCategoriesSheetName,
		GoogleCredentialsFile:     appConfig.GoogleCredentialsFile,
		GoogleCredentialsJSON:     appConfig.GoogleCredentialsJSON,

		DataDirectory: appConfig.DataDirectory,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
	case MemoryBackend:
		// DataDirectory defaults to "data"
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, SheetsBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
