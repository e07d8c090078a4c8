package config

const (
	// DefaultDatabasePath is the default path for the migration state database
	DefaultDatabasePath = "./leaflet-importer.db"

	// DefaultTasksDatabasePath is the default path for the task queue database
	DefaultTasksDatabasePath = "./leaflet-importer-tasks.db"
)
