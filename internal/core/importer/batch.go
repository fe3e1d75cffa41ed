package importer

import (
	"context"
	"fmt"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/core/status"
	"go.uber.org/zap"
)

// RecordBatch stores a manual import batch and gives it an initial status
// so it can be tagged and tracked like an indicator.
func (im *Importer) RecordBatch(ctx context.Context, info domain.ImportInfo) (domain.ImportInfo, error) {
	if info.User == "" {
		info.User = im.opts.SystemUser
	}
	if info.Type == domain.ImportUnknown {
		info.Type = domain.ImportBulk
	}

	err := im.store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		created, err := repo.CreateImportInfo(ctx, info)
		if err != nil {
			return fmt.Errorf("create import info: %w", err)
		}
		info = created
		_, err = im.status.Apply(ctx, repo, info.Target(), status.NewAction(info.User, info.Comment), status.Inputs{})
		return err
	})
	if err != nil {
		return domain.ImportInfo{}, err
	}
	im.log.Info("recorded import batch",
		zap.Int64("id", info.ID),
		zap.String("name", info.Name),
		zap.String("user", info.User))
	return info, nil
}
