package models

import (
	"log"
	"os"

	"github.com/mradamcox/ohmg/config"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var DB *gorm.DB

func InitDB() {
	if err := os.MkdirAll(config.Documents, os.ModePerm); err != nil {
		log.Fatalf("Failed to create document storage: %v", err)
	}
	if err := os.MkdirAll(config.Layers, os.ModePerm); err != nil {
		log.Fatalf("Failed to create layer storage: %v", err)
	}

	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
	}

	var err error
	if config.Dbkind == "postgres" {
		DB, err = gorm.Open(postgres.Open(config.DSN), cfg)
	} else {
		DB, err = gorm.Open(sqlite.Open(config.MainConfig.Dbfile), cfg)
	}
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := MigrateAllTables(DB); err != nil {
		log.Printf("Failed to migrate tables: %v", err)
	}
}

// MigrateAllTables creates or updates every table the pipeline persists.
func MigrateAllTables(db *gorm.DB) error {
	models := []interface{}{
		&Document{},
		&Layer{},
		&DocumentLink{},
		&LayerMask{},
		&GCP{},
		&GCPGroup{},
		&Segmentation{},
		&Session{},
	}

	return db.AutoMigrate(models...)
}

func GetDB() *gorm.DB {
	return DB
}
