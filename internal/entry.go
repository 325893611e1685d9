// Package internal provides the mem command tree and its runtime wiring.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/mem/internal/memservice"
	"github.com/starford/mem/internal/render"
	"github.com/starford/mem/internal/storage"
	"github.com/starford/mem/internal/stores"
	pkgconfig "github.com/starford/mem/pkg/config"
)

// NewCommand builds the mem command tree.
func NewCommand(opts ...Option) *cli.Command {
	app := &application{
		stdout:  os.Stdout,
		stdin:   os.Stdin,
		version: "dev",
	}
	for _, opt := range opts {
		opt(app)
	}

	return &cli.Command{
		Name:    "mem",
		Usage:   "File-backed knowledge store of Markdown mems",
		Version: app.version,
		Writer:  app.stdout,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "dir",
				Usage: "Store directory to read from (repeatable); defaults to the nearest .mems/",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to config file",
				Sources: cli.EnvVars("MEM_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Initialize a new .mems/ directory",
				Action: app.initStore,
			},
			{
				Name:      "add",
				Usage:     "Create a mem",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "content", Aliases: []string{"c"}, Usage: "Body (read from stdin when absent)"},
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title (derived from the path when absent)"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Overwrite an existing mem"},
				},
				Action: app.add,
			},
			{
				Name:      "show",
				Usage:     "Print a mem",
				ArgsUsage: "PATH",
				Flags:     []cli.Flag{jsonFlag()},
				Action:    app.show,
			},
			{
				Name:      "edit",
				Usage:     "Change the body, title or tags of a mem",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "content", Aliases: []string{"c"}, Usage: "New body"},
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
					&cli.StringFlag{Name: "tags", Usage: "New comma-separated tags"},
					&cli.StringFlag{Name: "if-match", Usage: "Only edit when the current checksum equals this value"},
				},
				Action: app.edit,
			},
			{
				Name:      "rm",
				Usage:     "Delete a mem",
				ArgsUsage: "PATH",
				Action:    app.remove,
			},
			{
				Name:      "ls",
				Usage:     "List mems",
				ArgsUsage: "[PREFIX]",
				Flags: []cli.Flag{
					jsonFlag(),
					&cli.StringFlag{Name: "match", Usage: "Glob over the path (* within a segment, ** across)"},
					&cli.StringFlag{Name: "tag", Usage: "Only mems carrying this tag"},
					&cli.BoolFlag{Name: "archived", Usage: "List archived mems instead"},
				},
				Action: app.list,
			},
			{
				Name:      "find",
				Usage:     "Search titles and bodies (case-insensitive)",
				ArgsUsage: "QUERY",
				Flags:     []cli.Flag{jsonFlag()},
				Action:    app.find,
			},
			{
				Name:      "tree",
				Usage:     "Print the mem hierarchy",
				ArgsUsage: "[PREFIX]",
				Action:    app.tree,
			},
			{
				Name:  "stale",
				Usage: "List mems not updated recently",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Usage: "Age threshold in days (default from config, 90)"},
					jsonFlag(),
				},
				Action: app.stale,
			},
			{
				Name:   "lint",
				Usage:  "Check links between mems and empty titles or bodies",
				Flags:  []cli.Flag{jsonFlag()},
				Action: app.lint,
			},
			{
				Name:      "archive",
				Usage:     "Move a mem into the archive",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Replace an archived mem at the same path"},
				},
				Action: app.archive,
			},
			{
				Name:      "dump",
				Usage:     "Concatenate mems into one Markdown document",
				ArgsUsage: "[PREFIX]",
				Action:    app.dump,
			},
			{
				Name:   "watch",
				Usage:  "Print changes to the stores as they happen",
				Action: app.watch,
			},
			{
				Name:  "serve",
				Usage: "Serve the stores over HTTP with a change-event stream",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "Listen port (default from config, 8080)"},
					&cli.BoolFlag{Name: "read-only", Usage: "Disable the write routes"},
				},
				Action: app.serve,
			},
			{
				Name:  "mcp",
				Usage: "Serve the stores as MCP tools over stdio",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "read-only", Usage: "Do not expose add_mem"},
				},
				Action: app.mcp,
			},
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Print JSON"}
}

// prepare loads the configuration and builds the logger once per invocation.
func (a *application) prepare(cmd *cli.Command) error {
	if a.config == nil {
		cfg := NewDefaultConfig()
		if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		a.config = cfg
	}
	if a.logger == nil {
		a.logger = a.config.App.NewLogger(os.Stderr)
		slog.SetDefault(a.logger)
	}
	if a.workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		a.workdir = wd
	}
	return nil
}

// openSet opens the stores named by --dir, or the implicit store.
func (a *application) openSet(cmd *cli.Command) (*stores.Set, error) {
	if err := a.prepare(cmd); err != nil {
		return nil, err
	}
	return stores.Open(cmd.StringSlice("dir"), a.workdir, storage.WithLogger(a.logger))
}

// openService opens the implicit store for a write. Writes never go to
// --dir stores.
func (a *application) openService(cmd *cli.Command) (*memservice.Service, error) {
	if err := a.prepare(cmd); err != nil {
		return nil, err
	}
	root, err := storage.Locate(a.workdir)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFS(root, storage.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return memservice.NewService(store, a.logger), nil
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return "", fmt.Errorf("missing %s argument", name)
	}
	return arg, nil
}

func (a *application) initStore(_ context.Context, cmd *cli.Command) error {
	if err := a.prepare(cmd); err != nil {
		return err
	}
	if _, err := storage.Init(a.workdir); err != nil {
		return err
	}
	_, err := fmt.Fprintln(a.stdout, "Initialized .mems/ directory")
	return err
}

func (a *application) add(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "PATH")
	if err != nil {
		return err
	}
	svc, err := a.openService(cmd)
	if err != nil {
		return err
	}

	content := cmd.String("content")
	if !cmd.IsSet("content") {
		raw, err := io.ReadAll(a.stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		if len(raw) == 0 {
			return errors.New("no content provided (use -c or pipe via stdin)")
		}
		content = string(raw)
	}

	if _, err := svc.Add(ctx, memservice.AddRequest{
		Path:    path,
		Title:   cmd.String("title"),
		Content: content,
		Tags:    memservice.ParseTags(cmd.String("tags")),
		Force:   cmd.Bool("force"),
	}); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "Created: %s\n", path)
	return err
}

func (a *application) show(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "PATH")
	if err != nil {
		return err
	}
	svc, err := a.openService(cmd)
	if err != nil {
		return err
	}
	m, err := svc.Show(ctx, path)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return render.JSON(a.stdout, render.FromMem("", m))
	}
	return render.Show(a.stdout, m)
}

func (a *application) edit(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "PATH")
	if err != nil {
		return err
	}
	svc, err := a.openService(cmd)
	if err != nil {
		return err
	}

	req := memservice.EditRequest{Path: path, IfMatch: cmd.String("if-match")}
	if cmd.IsSet("content") {
		c := cmd.String("content")
		req.Content = &c
	}
	if cmd.IsSet("title") {
		t := cmd.String("title")
		req.Title = &t
	}
	if cmd.IsSet("tags") {
		tags := memservice.ParseTags(cmd.String("tags"))
		req.Tags = &tags
	}

	if _, err := svc.Edit(ctx, req); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "Updated: %s\n", path)
	return err
}

func (a *application) remove(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "PATH")
	if err != nil {
		return err
	}
	svc, err := a.openService(cmd)
	if err != nil {
		return err
	}
	if err := svc.Remove(ctx, path); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "Deleted: %s\n", path)
	return err
}

func (a *application) archive(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "PATH")
	if err != nil {
		return err
	}
	svc, err := a.openService(cmd)
	if err != nil {
		return err
	}
	if err := svc.Archive(ctx, path, cmd.Bool("force")); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "Archived: %s\n", path)
	return err
}

func (a *application) list(_ context.Context, cmd *cli.Command) error {
	set, err := a.openSet(cmd)
	if err != nil {
		return err
	}
	filter, err := stores.NewFilter(cmd.String("match"), cmd.String("tag"))
	if err != nil {
		return err
	}

	prefix := strings.Trim(cmd.Args().First(), "/")
	var entries []stores.Entry
	if cmd.Bool("archived") {
		entries, err = set.ListArchived(prefix, filter)
	} else {
		entries, err = set.List(prefix, filter)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return render.JSON(a.stdout, render.FromEntries(entries, set.Multi()))
	}
	return render.List(a.stdout, entries, set.Multi())
}

func (a *application) find(_ context.Context, cmd *cli.Command) error {
	query, err := requireArg(cmd, "QUERY")
	if err != nil {
		return err
	}
	set, err := a.openSet(cmd)
	if err != nil {
		return err
	}
	entries, err := set.Search(query)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return render.JSON(a.stdout, render.FromEntries(entries, set.Multi()))
	}
	return render.Find(a.stdout, entries, set.Multi(), query)
}

func (a *application) tree(_ context.Context, cmd *cli.Command) error {
	set, err := a.openSet(cmd)
	if err != nil {
		return err
	}
	prefix := strings.Trim(cmd.Args().First(), "/")
	trees, err := set.Trees(prefix)
	if err != nil {
		return err
	}
	return render.Trees(a.stdout, trees, set.Multi(), prefix)
}

func (a *application) stale(_ context.Context, cmd *cli.Command) error {
	set, err := a.openSet(cmd)
	if err != nil {
		return err
	}
	days := a.config.Stale.Days
	if cmd.IsSet("days") {
		days = int(cmd.Int("days"))
	}
	if days < 0 {
		return errors.New("--days must be non-negative")
	}

	now := timeNow()
	entries, err := set.Stale(now, daysToDuration(days))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return render.JSON(a.stdout, render.FromEntries(entries, set.Multi()))
	}
	return render.Stale(a.stdout, entries, set.Multi(), now, days)
}

func (a *application) lint(_ context.Context, cmd *cli.Command) error {
	set, err := a.openSet(cmd)
	if err != nil {
		return err
	}
	report, err := set.Lint()
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		if err := render.JSON(a.stdout, report); err != nil {
			return err
		}
		if report.Failed() {
			return fmt.Errorf("lint failed with %d issues", len(report.Findings))
		}
		return nil
	}
	return render.Lint(a.stdout, report)
}

func (a *application) dump(_ context.Context, cmd *cli.Command) error {
	set, err := a.openSet(cmd)
	if err != nil {
		return err
	}
	prefix := strings.Trim(cmd.Args().First(), "/")
	groups := make([]render.Group, 0, len(set.Stores()))
	for _, s := range set.Stores() {
		mems, err := s.Store.List(prefix)
		if err != nil {
			return err
		}
		groups = append(groups, render.Group{Label: s.Label, Mems: mems})
	}
	return render.Dump(a.stdout, groups, set.Multi())
}
