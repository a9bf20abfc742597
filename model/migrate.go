package model

import "gorm.io/gorm"

// allModels lists every model to be auto-migrated. Parents come first so
// the child foreign keys resolve.
var allModels = []interface{}{
	&Guild{},
	&Member{},
	&Upgrade{},
	&Perk{},
	&Wallet{},
	&AuditLog{},
}

// AutoMigrate creates or updates all tables in the given database.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(allModels...)
}
