package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"feedmap/internal/rules"
	"feedmap/internal/storage"
)

func newProfileCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved mapping profiles",
	}
	cmd.AddCommand(newProfileSaveCommand(a))
	cmd.AddCommand(newProfileShowCommand(a))
	cmd.AddCommand(newProfileListCommand(a))
	return cmd
}

func newProfileSaveCommand(a *app) *cobra.Command {
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "save <shop> <name>",
		Short: "Save a rules file as a profile of a shop",
		Args:  args(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			if rulesPath == "" {
				return usageErrorf("--rules is required")
			}
			format, err := rules.FormatFromPath(rulesPath)
			if err != nil {
				return &usageError{err: err}
			}
			decls, _, err := rules.Load(rulesPath)
			if err != nil {
				return err
			}
			doc, err := rules.Encode(decls, format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			repo, err := a.repository(ctx)
			if err != nil {
				return err
			}
			shop, err := repo.GetShop(ctx, argv[0])
			if err != nil {
				return err
			}
			p, err := repo.SaveProfile(ctx, storage.Profile{ShopID: shop.ID, Name: argv[1], Rules: doc, Format: string(format)})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %s for shop %s (%d rules)\n", p.Name, shop.Name, len(decls.Rules))
			return nil
		},
	}
	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "", "Rules file (.json, .yaml, .yml)")
	return cmd
}

func newProfileShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <shop> <name>",
		Short: "Print a saved profile",
		Args:  args(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			ctx := cmd.Context()
			repo, err := a.repository(ctx)
			if err != nil {
				return err
			}
			shop, err := repo.GetShop(ctx, argv[0])
			if err != nil {
				return err
			}
			p, err := repo.GetProfile(ctx, shop.ID, argv[1])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(p.Rules)
			return err
		},
	}
}

func newProfileListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <shop>",
		Short: "List the profiles of a shop",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			ctx := cmd.Context()
			repo, err := a.repository(ctx)
			if err != nil {
				return err
			}
			shop, err := repo.GetShop(ctx, argv[0])
			if err != nil {
				return err
			}
			profiles, err := repo.ListProfiles(ctx, shop.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(profiles) == 0 {
				fmt.Fprintf(out, "No profiles for shop %s\n", shop.Name)
				return nil
			}
			rows := make([][]string, 0, len(profiles))
			for _, p := range profiles {
				count := "?"
				if format, err := rules.ParseFormat(p.Format); err == nil {
					if decls, err := rules.Parse(p.Rules, format); err == nil {
						count = strconv.Itoa(len(decls.Rules))
					}
				}
				rows = append(rows, []string{p.Name, p.Format, count, humanize.Time(p.UpdatedAt)})
			}
			fmt.Fprintln(out, renderTable([]string{"Profile", "Format", "Rules", "Updated"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
}
