package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/aeromro/spareparts_backend/config"
	"bitbucket.org/aeromro/spareparts_backend/models"
	"bitbucket.org/aeromro/spareparts_backend/utils"
	"bitbucket.org/aeromro/spareparts_backend/workflow"
	"github.com/sirupsen/logrus"
)

// Repair/back-fill job: replays every SKU's ledger and rewrites the derived
// remaining_balance on issue events. Safe to re-run; a second pass changes
// nothing.
func main() {
	itemID := flag.Int("item-id", 0, "Optional: rebuild a single stock item")
	dryRun := flag.Bool("dry-run", false, "Compute and report changes, then roll back")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	tx := db.Begin()
	if tx.Error != nil {
		fmt.Fprintf(os.Stderr, "begin transaction: %v\n", tx.Error)
		os.Exit(1)
	}

	var scope []int
	if *itemID > 0 {
		var item models.StockItem
		if err := tx.First(&item, *itemID).Error; err != nil {
			tx.Rollback()
			fmt.Fprintf(os.Stderr, "stock item %d: %v\n", *itemID, err)
			os.Exit(1)
		}
		scope = append(scope, *itemID)
	}

	summary, err := workflow.RebuildRemainingBalances(tx, logger, scope...)
	if err != nil {
		tx.Rollback()
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		tx.Rollback()
		fmt.Printf("dry-run: would fix %d issue rows (%d SKU errors)\n", summary.FixedCount, summary.ErrorCount)
	} else {
		if err := tx.Commit().Error; err != nil {
			fmt.Fprintf(os.Stderr, "commit: %v\n", err)
			os.Exit(1)
		}
		summary.RefreshBalanceCaches()
		fmt.Printf("fixed %d issue rows (%d SKU errors)\n", summary.FixedCount, summary.ErrorCount)
	}
	if out, jerr := utils.MarshalToJSON(summary); jerr == nil {
		fmt.Println(out)
	}
	for _, e := range summary.Errors {
		fmt.Fprintln(os.Stderr, e)
	}
	if summary.ErrorCount > 0 {
		os.Exit(2)
	}
}
