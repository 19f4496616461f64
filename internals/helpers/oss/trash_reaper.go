package helper

import (
	"context"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/robfig/cron/v3"

	"vulcan_backend/internals/helpers/logger"
)

type TrashReaperConfig struct {
	RetentionDays int
	CronSchedule  string
	DryRun        bool
}

// StartTrashReaperCron deletes purged proofs older than the retention window.
func StartTrashReaperCron(store *OSSBlobStore, cfg TrashReaperConfig) (*cron.Cron, error) {
	log := logger.For("trash-reaper")
	if cfg.CronSchedule == "" {
		cfg.CronSchedule = "15 2 * * *"
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(cfg.CronSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()
		retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		if err := runOSSReaper(ctx, store.Bucket, store.TrashPrefix+"/", retention, cfg.DryRun); err != nil {
			log.Error().Err(err).Msg("reaper run failed")
		}
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("schedule", cfg.CronSchedule).Str("prefix", store.TrashPrefix).
		Int("retention_days", cfg.RetentionDays).Bool("dry_run", cfg.DryRun).Msg("started")
	c.Start()
	return c, nil
}

func runOSSReaper(ctx context.Context, bucket *oss.Bucket, prefix string, retention time.Duration, dryRun bool) error {
	log := logger.For("trash-reaper")
	threshold := time.Now().Add(-retention)

	marker := oss.Marker("")
	var keysToDelete []string
	total := 0

	for {
		lor, err := bucket.ListObjects(oss.Prefix(prefix), marker, oss.MaxKeys(1000), oss.WithContext(ctx))
		if err != nil {
			return err
		}
		for _, obj := range lor.Objects {
			total++
			if obj.Key != "" && obj.LastModified.Before(threshold) {
				keysToDelete = append(keysToDelete, obj.Key)
			}
		}
		if !lor.IsTruncated {
			break
		}
		marker = oss.Marker(lor.NextMarker)
	}

	if len(keysToDelete) == 0 || dryRun {
		log.Info().Int("scanned", total).Int("expired", len(keysToDelete)).Bool("dry_run", dryRun).Msg("nothing deleted")
		return nil
	}

	deleted := 0
	for i := 0; i < len(keysToDelete); i += 1000 {
		end := i + 1000
		if end > len(keysToDelete) {
			end = len(keysToDelete)
		}
		batch := keysToDelete[i:end]
		if _, err := bucket.DeleteObjects(batch, oss.DeleteObjectsQuiet(true), oss.WithContext(ctx)); err != nil {
			log.Error().Err(err).Int("from", i).Int("to", end).Msg("delete batch failed")
			continue
		}
		deleted += len(batch)
	}
	log.Info().Int("deleted", deleted).Int("scanned", total).Str("prefix", prefix).Msg("reaped")
	return nil
}
