package models

import (
	"log"

	"bitbucket.org/aeromro/spareparts_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&StockItem{}, &StockItemPartNo{}, &StockItemEquipment{},
		&ReceiveEvent{}, &IssueEvent{},
		&RrpRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
