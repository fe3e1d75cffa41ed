package tagging

import (
	"context"
	"errors"
	"fmt"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"go.uber.org/zap"
)

// RenameTag renames a tag everywhere it is used: as fact tag, as context
// and as tag name. It fails when the new name is already taken.
func (e *Engine) RenameTag(ctx context.Context, repo ports.Repository, from, to string) error {
	if from == "" || to == "" || from == to {
		return fmt.Errorf("rename %q to %q: invalid names", from, to)
	}

	exists, err := e.facts.FactTagExists(ctx, to)
	if err != nil {
		return fmt.Errorf("check fact tag %s: %w", to, err)
	}
	if exists {
		return fmt.Errorf("%w: fact tag %s", ErrTargetExists, to)
	}
	if _, err := repo.GetContext(ctx, to); err == nil {
		return fmt.Errorf("%w: context %s", ErrTargetExists, to)
	} else if !errors.Is(err, ports.ErrNotFound) {
		return err
	}

	affected, err := repo.TargetsWithTags(ctx, []string{from})
	if err != nil {
		return fmt.Errorf("targets tagged %s: %w", from, err)
	}

	if c, err := repo.GetContext(ctx, from); err == nil {
		c.Name = to
		if err := repo.UpdateContext(ctx, c); err != nil {
			return fmt.Errorf("rename context: %w", err)
		}
	} else if !errors.Is(err, ports.ErrNotFound) {
		return err
	}

	if err := repo.RenameName(ctx, ports.TagNames, from, to); err != nil {
		switch {
		case errors.Is(err, ports.ErrNotFound):
		case errors.Is(err, ports.ErrConflict):
			return fmt.Errorf("%w: tag name %s", ErrTargetExists, to)
		default:
			return fmt.Errorf("rename tag name: %w", err)
		}
	}

	if err := e.facts.RenameFactTag(ctx, from, to); err != nil {
		return fmt.Errorf("rename fact tag: %w", err)
	}

	e.reg.InvalidateAll()
	if err := e.RefreshTagCaches(ctx, repo, indicatorIDs(affected)); err != nil {
		return err
	}
	e.log.Info("renamed tag", zap.String("from", from), zap.String("to", to), zap.Int("targets", len(affected)))
	return nil
}

// DeleteTags removes contexts, tag names and fact tags with the given names
// together with every actionable tag, attachment and history entry
// depending on them.
func (e *Engine) DeleteTags(ctx context.Context, repo ports.Repository, names []string) error {
	affected, err := repo.TargetsWithTags(ctx, names)
	if err != nil {
		return fmt.Errorf("targets tagged %v: %w", names, err)
	}

	contexts, err := repo.DeleteContexts(ctx, names)
	if err != nil {
		return fmt.Errorf("delete contexts: %w", err)
	}
	tagNames, err := repo.DeleteNames(ctx, ports.TagNames, names)
	if err != nil {
		return fmt.Errorf("delete tag names: %w", err)
	}
	if err := e.facts.DeleteFactTags(ctx, names); err != nil {
		return fmt.Errorf("delete fact tags: %w", err)
	}

	e.reg.InvalidateAll()
	if err := e.RefreshTagCaches(ctx, repo, indicatorIDs(affected)); err != nil {
		return err
	}
	e.log.Info("deleted tags",
		zap.Strings("names", names),
		zap.Int("contexts", contexts),
		zap.Int("tag_names", tagNames),
		zap.Int("targets", len(affected)))
	return nil
}

// DeleteTagInfo drops tag names from the actionable side only, leaving
// contexts and fact tags alone.
func (e *Engine) DeleteTagInfo(ctx context.Context, repo ports.Repository, names []string) error {
	affected, err := repo.TargetsWithTags(ctx, names)
	if err != nil {
		return fmt.Errorf("targets tagged %v: %w", names, err)
	}
	if _, err := repo.DeleteNames(ctx, ports.TagNames, names); err != nil {
		return fmt.Errorf("delete tag names: %w", err)
	}
	e.reg.InvalidateAll()
	return e.RefreshTagCaches(ctx, repo, indicatorIDs(affected))
}

// ForceContextType overrides the type a context was created with.
func (e *Engine) ForceContextType(ctx context.Context, repo ports.Repository, name string, t domain.ContextType) error {
	c, err := repo.GetContext(ctx, name)
	if err != nil {
		return fmt.Errorf("context %s: %w", name, err)
	}
	if c.Type == t {
		return nil
	}
	c.Type = t
	if err := repo.UpdateContext(ctx, c); err != nil {
		return fmt.Errorf("update context %s: %w", name, err)
	}
	return nil
}

func indicatorIDs(targets []domain.Target) []int64 {
	var ids []int64
	for _, t := range targets {
		if t.Kind == domain.TargetIndicator {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
