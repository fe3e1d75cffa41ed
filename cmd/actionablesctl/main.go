package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/hive-corporation/actionables/internal/app"
	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/outdating"
	"github.com/hive-corporation/actionables/internal/core/ports"
)

const usage = `usage: actionablesctl [-config file] <command> [args]

commands:
  outdate [-commit] [-report id,...]   sweep sources of superseded reports (dry run by default)
  rename-tag <from> <to>               rename a context, tag name and fact tag
  delete-tag <name>...                 delete tags and everything depending on them
  delete-tag-info <name>...            delete actionable tag names only
  force-context-type <name> <type>     set a context type (INVES, IR, CERT)
  record-batch -name n [-comment c]    record a manual import batch
`

var errUsage = errors.New("invalid usage")

func main() {
	global := flag.NewFlagSet("actionablesctl", flag.ExitOnError)
	configPath := global.String("config", "", "Path to the YAML config file")
	user := global.String("user", "", "User recorded on changes (default: import.system_user)")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])
	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}

	cfg, log, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "actionablesctl: %v\n", err)
		os.Exit(2)
	}
	if *user == "" {
		*user = cfg.Import.SystemUser
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	err = run(ctx, a, *user, global.Args(), os.Stdout)
	a.Close(context.Background())
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "actionablesctl: %v\n\n%s", err, usage)
		os.Exit(2)
	case err != nil:
		fmt.Fprintf(os.Stderr, "actionablesctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, user string, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "outdate":
		return outdate(ctx, a, user, rest, out)
	case "rename-tag":
		if len(rest) != 2 {
			return fmt.Errorf("%w: rename-tag takes <from> <to>", errUsage)
		}
		return a.Tx.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
			return a.Tags.RenameTag(ctx, repo, rest[0], rest[1])
		})
	case "delete-tag":
		if len(rest) == 0 {
			return fmt.Errorf("%w: delete-tag needs at least one name", errUsage)
		}
		return a.Tx.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
			return a.Tags.DeleteTags(ctx, repo, rest)
		})
	case "delete-tag-info":
		if len(rest) == 0 {
			return fmt.Errorf("%w: delete-tag-info needs at least one name", errUsage)
		}
		return a.Tx.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
			return a.Tags.DeleteTagInfo(ctx, repo, rest)
		})
	case "force-context-type":
		if len(rest) != 2 {
			return fmt.Errorf("%w: force-context-type takes <name> <type>", errUsage)
		}
		t, ok := domain.ParseContextType(rest[1])
		if !ok {
			return fmt.Errorf("%w: unknown context type %q", errUsage, rest[1])
		}
		return a.Tx.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
			return a.Tags.ForceContextType(ctx, repo, rest[0], t)
		})
	case "record-batch":
		return recordBatch(ctx, a, user, rest, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func outdate(ctx context.Context, a *app.App, user string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("outdate", flag.ContinueOnError)
	commit := fs.Bool("commit", false, "Write the changes instead of simulating")
	reports := fs.String("report", "", "Comma separated report identifier ids (default: all)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	opts := outdating.Options{DryRun: !*commit, User: user}
	if *reports != "" {
		ids, err := parseIDs(*reports)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		opts.IdentifierIDs = ids
	}

	rep, err := a.Sweeper.Run(ctx, a.Tx, opts)
	if err != nil {
		return err
	}
	printSweep(out, rep)
	return nil
}

func printSweep(out io.Writer, rep outdating.Report) {
	mode := "committed"
	if rep.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(out, "%s: %d sources outdated on %d indicators\n", mode, len(rep.Outdated), rep.Indicators)
	for _, in := range rep.Intents {
		fmt.Fprintf(out, "  indicator %d <- %s (reports %s)\n", in.IndicatorID, in.Tag, joinIDs(in.Reports))
	}
}

func recordBatch(ctx context.Context, a *app.App, user string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("record-batch", flag.ContinueOnError)
	name := fs.String("name", "", "Batch name")
	description := fs.String("description", "", "Batch description")
	comment := fs.String("comment", "", "Comment recorded on the initial status")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *name == "" {
		return fmt.Errorf("%w: record-batch needs -name", errUsage)
	}

	info, err := a.Importer.RecordBatch(ctx, domain.ImportInfo{
		Type:        domain.ImportBulk,
		User:        user,
		Name:        *name,
		Description: *description,
		Comment:     *comment,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "recorded import batch %d (%s)\n", info.ID, info.Name)
	return nil
}

func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
