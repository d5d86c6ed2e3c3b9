package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"feedmap/internal/feed"
	"feedmap/internal/pipeline"
	"feedmap/internal/rules"
	"feedmap/internal/source"
)

type transformOptions struct {
	rulesPath string
	shop      string
	profile   string
	out       string
	dir       string
	preview   bool
}

func newTransformCommand(a *app) *cobra.Command {
	var opts transformOptions

	cmd := &cobra.Command{
		Use:   "transform [file|url|-]",
		Short: "Apply mapping rules to a feed and export the result",
		Long: `Apply mapping rules to a feed and export the result.

Rules come from a file (--rules) or from a profile saved for a shop
(--shop and --profile). Without an input argument the shop's feed URL is
used, or stdin when the shop has none. --dir transforms every *.xml file of
a directory and exports each under its own name.`,
		Args: args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			var arg string
			if len(argv) == 1 {
				arg = argv[0]
			}
			if err := opts.validate(arg); err != nil {
				return err
			}
			return runTransform(cmd, a, opts, arg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.rulesPath, "rules", "r", "", "Rules file (.json, .yaml, .yml)")
	f.StringVar(&opts.shop, "shop", "", "Shop name or ID whose profile to use")
	f.StringVar(&opts.profile, "profile", "", "Saved mapping profile of --shop")
	f.StringVarP(&opts.out, "out", "o", "", "Export name (default "+feed.DefaultExportName+")")
	f.StringVar(&opts.dir, "dir", "", "Transform every *.xml file in this directory")
	f.BoolVar(&opts.preview, "preview", false, "Print the transformed feed instead of exporting it")
	return cmd
}

func (o transformOptions) validate(arg string) error {
	switch {
	case o.rulesPath == "" && o.shop == "":
		return usageErrorf("either --rules or --shop with --profile is required")
	case o.rulesPath != "" && (o.shop != "" || o.profile != ""):
		return usageErrorf("--rules cannot be combined with --shop or --profile")
	case o.shop != "" && o.profile == "":
		return usageErrorf("--shop needs --profile")
	case o.dir != "" && arg != "":
		return usageErrorf("--dir cannot be combined with an input argument")
	case o.dir != "" && (o.preview || o.out != ""):
		return usageErrorf("--dir cannot be combined with --preview or --out")
	}
	return nil
}

func runTransform(cmd *cobra.Command, a *app, opts transformOptions, arg string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	compiled, feedURL, err := resolveRules(ctx, a, opts)
	if err != nil {
		return err
	}

	input := a.inputFor(arg)
	if arg == "" && feedURL != "" {
		input = source.Input{URL: feedURL}
	}

	if opts.preview {
		m, _, err := pipeline.New(a.loader(), nil).Transform(ctx, pipeline.Job{Input: input, Rules: compiled})
		if err != nil {
			return err
		}
		xml, err := m.Serialize()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, xml)
		return err
	}

	target, err := a.target(ctx)
	if err != nil {
		return err
	}
	runner := pipeline.New(a.loader(), target)

	if opts.dir != "" {
		res, err := runner.RunDir(ctx, opts.dir, compiled)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(res.Results)+len(res.Skipped))
		for _, r := range res.Results {
			rows = append(rows, []string{r.Source, strconv.Itoa(r.Items), humanize.Bytes(uint64(r.Export.Size)), r.Export.Location})
		}
		for _, s := range res.Skipped {
			rows = append(rows, []string{s.File, "-", "-", "skipped: " + s.Err.Error()})
		}
		fmt.Fprintln(out, renderTable([]string{"Feed", "Items", "Size", "Exported to"}, rows, []columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
		fmt.Fprintf(out, "%d exported, %d skipped\n", len(res.Results), len(res.Skipped))
		return nil
	}

	res, err := runner.Run(ctx, pipeline.Job{Input: input, Rules: compiled, OutputName: opts.out})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d items (%s) to %s\n", res.Items, humanize.Bytes(uint64(res.Export.Size)), res.Export.Location)
	return nil
}

// resolveRules returns the compiled rules and, for a shop profile, the shop's
// feed URL.
func resolveRules(ctx context.Context, a *app, opts transformOptions) ([]feed.Rule, string, error) {
	if opts.rulesPath != "" {
		_, compiled, err := rules.Load(opts.rulesPath)
		return compiled, "", err
	}

	repo, err := a.repository(ctx)
	if err != nil {
		return nil, "", err
	}
	shop, err := repo.GetShop(ctx, opts.shop)
	if err != nil {
		return nil, "", err
	}
	p, err := repo.GetProfile(ctx, shop.ID, opts.profile)
	if err != nil {
		return nil, "", err
	}
	format, err := rules.ParseFormat(p.Format)
	if err != nil {
		return nil, "", err
	}
	decls, err := rules.Parse(p.Rules, format)
	if err != nil {
		return nil, "", errors.Errorf("profile %s/%s: %w", shop.Name, p.Name, err)
	}
	compiled, err := decls.Compile()
	if err != nil {
		return nil, "", errors.Errorf("profile %s/%s: %w", shop.Name, p.Name, err)
	}
	return compiled, strings.TrimSpace(shop.FeedURL), nil
}
