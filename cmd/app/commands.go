package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/decisionrecords/internal"
	"github.com/starford/decisionrecords/internal/index"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/recordservice"
	"github.com/starford/decisionrecords/internal/workspace"
)

var errIssuesFound = errors.New("consistency issues found")

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// openWorkspace discovers the workspace and wires the record services for a
// one-shot command. Logs are quiet unless --verbose is given.
func openWorkspace(cmd *cli.Command) (*internal.Services, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = cfg.App.LogLevel
	}
	logger := internal.NewLogger(level, os.Stderr, false)

	start := cfg.Workspace.Path
	if start == "" {
		start = "."
	}
	settings, err := workspace.Discover(start)
	if err != nil {
		return nil, nil, err
	}
	svc, err := internal.NewServices(settings, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	return svc, logger, nil
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid record id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(arg string) (int, error) {
	ids, err := parseIDs([]string{arg})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the workspace indicator and the default template",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "doc-path", Value: workspace.DefaultRecordDir, Usage: "Directory the records are written to"},
			&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Value: workspace.DefaultTemplateName, Usage: "Template file name, or " + workspace.InternalTemplate + " for the built-in one"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(models.FormatMarkdown), Usage: "Record format: md or rst"},
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Value: workspace.DefaultLanguage, Usage: "Language of headings and status lines"},
			&cli.StringFlag{Name: "template-dir", Aliases: []string{"d"}, Value: workspace.DefaultTemplateDir, Usage: "Directory holding templates and translations"},
			&cli.BoolFlag{Name: "adr-format", Usage: "Write a bare " + workspace.ADRDirFile + " indicator"},
			&cli.BoolFlag{Name: "default-proposed", Aliases: []string{"p"}, Usage: "New records start as Proposed"},
			&cli.BoolFlag{Name: "force", Usage: "Replace an existing indicator"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			settings, err := workspace.Init(workspace.InitOptions{
				Root:            cfg.Workspace.Path,
				RecordDir:       cmd.String("doc-path"),
				TemplateDir:     cmd.String("template-dir"),
				TemplateName:    cmd.String("template"),
				Language:        cmd.String("language"),
				Format:          models.Format(cmd.String("format")),
				DefaultProposed: cmd.Bool("default-proposed"),
				ADR:             cmd.Bool("adr-format"),
				Force:           cmd.Bool("force"),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(stdout(cmd), "initialised %s, records in %s\n", settings.Indicator, settings.RecordDir)
			return err
		},
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Aliases:   []string{"create"},
		Usage:     "Create a record with the next free identifier",
		ArgsUsage: "TITLE...",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "supersede", Aliases: []string{"s"}, Usage: "Identifier of a record the new one supersedes"},
			&cli.StringSliceFlag{Name: "deprecate", Aliases: []string{"d"}, Usage: "Identifier of a record the new one deprecates"},
			&cli.StringSliceFlag{Name: "amend", Aliases: []string{"a"}, Usage: "Identifier of a record the new one amends"},
			&cli.StringSliceFlag{Name: "link", Aliases: []string{"l"}, Usage: "Identifier of a record to link to"},
			&cli.BoolFlag{Name: "proposed", Aliases: []string{"P"}, Usage: "Start as Proposed"},
			&cli.BoolFlag{Name: "approved", Aliases: []string{"A"}, Usage: "Start as Approved"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			req := recordservice.NewRequest{Title: strings.Join(cmd.Args().Slice(), " ")}
			var err error
			for _, f := range []struct {
				name string
				dst  *[]int
			}{
				{"supersede", &req.Supersedes},
				{"deprecate", &req.Deprecates},
				{"amend", &req.Amends},
				{"link", &req.Links},
			} {
				if *f.dst, err = parseIDs(cmd.StringSlice(f.name)); err != nil {
					return fmt.Errorf("--%s: %w", f.name, err)
				}
			}
			req.Proposed = cmd.Bool("proposed")
			req.Approved = cmd.Bool("approved")

			svc, _, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			rec, err := svc.Records.New(ctx, req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout(cmd), rec.Path)
			return err
		},
	}
}

type statusAction func(ctx context.Context, svc *internal.Services, ids []int) error

func approveRecords(ctx context.Context, svc *internal.Services, ids []int) error {
	return svc.Records.Approve(ctx, ids...)
}

func proposeRecords(ctx context.Context, svc *internal.Services, ids []int) error {
	return svc.Records.Propose(ctx, ids...)
}

func statusCommand(name string, aliases []string, usage string, act statusAction) *cli.Command {
	return &cli.Command{
		Name:      name,
		Aliases:   aliases,
		Usage:     usage,
		ArgsUsage: "ID...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return errors.New("at least one record id is required")
			}
			ids, err := parseIDs(cmd.Args().Slice())
			if err != nil {
				return err
			}
			svc, _, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			return act(ctx, svc, ids)
		},
	}
}

type relationAction func(ctx context.Context, svc *internal.Services, from, to int) error

func supersedeRecord(ctx context.Context, svc *internal.Services, from, to int) error {
	return svc.Records.Linker().Supersede(ctx, to, from)
}

func deprecateRecord(ctx context.Context, svc *internal.Services, from, to int) error {
	return svc.Records.Linker().Deprecate(ctx, to, from)
}

func amendRecord(ctx context.Context, svc *internal.Services, from, to int) error {
	return svc.Records.Linker().Amend(ctx, to, from)
}

// twoIDs parses the FROM and TO arguments shared by the relation commands.
func twoIDs(cmd *cli.Command) (from, to int, err error) {
	if cmd.Args().Len() < 2 {
		return 0, 0, errors.New("FROM and TO record ids are required")
	}
	if from, err = parseID(cmd.Args().Get(0)); err != nil {
		return 0, 0, err
	}
	if to, err = parseID(cmd.Args().Get(1)); err != nil {
		return 0, 0, err
	}
	return from, to, nil
}

func relationCommand(name string, aliases []string, usage string, act relationAction) *cli.Command {
	return &cli.Command{
		Name:      name,
		Aliases:   aliases,
		Usage:     usage,
		ArgsUsage: "FROM TO",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			from, to, err := twoIDs(cmd)
			if err != nil {
				return err
			}
			svc, _, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			return act(ctx, svc, from, to)
		},
	}
}

func linkCommand() *cli.Command {
	return &cli.Command{
		Name:      "link",
		Usage:     "Link FROM and TO both ways with a reason",
		ArgsUsage: "FROM TO REASON...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			from, to, err := twoIDs(cmd)
			if err != nil {
				return err
			}
			reason := strings.Join(cmd.Args().Slice()[2:], " ")
			svc, _, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			return svc.Records.Linker().Link(ctx, to, []int{from}, reason)
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List records with their status",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Usage: "Only show records whose status word matches"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, _, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			recs, err := svc.Records.List(ctx)
			if err != nil {
				return err
			}
			filter := cmd.String("status")
			tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tPATH")
			for _, r := range recs {
				if filter != "" && !strings.EqualFold(r.Status, filter) {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.PaddedID(), r.Status, r.Title, r.Path)
			}
			return tw.Flush()
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Report relation lines without a counterpart and other inconsistencies",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print issues as JSON"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			svc, logger, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			db, err := index.Open(index.MemoryDSN)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := index.Sync(db, svc.Store, svc.Records.Phrases(), logger); err != nil {
				return err
			}
			issues, err := db.Check()
			if err != nil {
				return err
			}

			w := stdout(cmd)
			if cmd.Bool("json") {
				if issues == nil {
					issues = []index.Issue{}
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(issues); err != nil {
					return err
				}
			} else {
				for _, is := range issues {
					fmt.Fprintln(w, is.String())
				}
			}
			if len(issues) > 0 {
				return fmt.Errorf("%w: %d", errIssuesFound, len(issues))
			}
			return nil
		},
	}
}
