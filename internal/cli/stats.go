package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quartzmem/quartz/internal/config"
	"github.com/quartzmem/quartz/internal/store"
)

// openDB is a helper that opens the database for offline CLI commands.
// QUARTZ_DB overrides the configured path.
func openDB() (*store.DB, error) {
	dbPath := os.Getenv("QUARTZ_DB")
	if dbPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(dbPath)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	recs, err := db.ListPartitions(ctx)
	if err != nil {
		return err
	}
	crystals, err := db.CountCrystals(ctx)
	if err != nil {
		return err
	}

	entries, err := db.CountEntries(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("db:         %s\n", db.Path)
	fmt.Printf("partitions: %d\n", len(recs))
	fmt.Printf("entries:    %d\n", entries)
	fmt.Printf("crystals:   %d\n", crystals)
	return nil
}

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "List partitions",
	RunE:  runPartitions,
}

func runPartitions(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	recs, err := db.ListPartitions(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No partitions yet.")
		return nil
	}

	for _, rec := range recs {
		n, err := db.PartitionLoad(ctx, rec.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s/%s  cap %.1f  load %d\n",
			rec.ID, rec.ContentType, rec.DepthTag, rec.Capacity, n)
	}
	return nil
}

var crystalsCmd = &cobra.Command{
	Use:   "crystals",
	Short: "List crystals, newest first",
	RunE:  runCrystals,
}

func runCrystals(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	crystals, err := db.ListCrystals(ctx)
	if err != nil {
		return err
	}
	if len(crystals) == 0 {
		fmt.Println("Nothing has crystallized yet.")
		return nil
	}

	for _, c := range crystals {
		kind := "entry " + c.SourceFingerprint
		if len(c.MemberFingerprints) > 0 {
			kind = fmt.Sprintf("cluster of %d", len(c.MemberFingerprints))
		}
		fmt.Printf("%s  %s  stability %.3f  %s\n",
			c.CreatedAt.Format(time.DateTime), c.ID, c.StabilityScore, kind)
	}
	return nil
}
