package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"feedmap/internal/storage"
)

func newShopCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shop",
		Short: "Manage shops",
	}
	cmd.AddCommand(newShopAddCommand(a))
	cmd.AddCommand(newShopListCommand(a))
	return cmd
}

func newShopAddCommand(a *app) *cobra.Command {
	var feedURL string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a shop",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			shop, err := storage.NewShop(argv[0], feedURL)
			if err != nil {
				return &usageError{err: err}
			}
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			shop, err = repo.CreateShop(cmd.Context(), shop)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added shop %s (%s)\n", shop.Name, shop.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&feedURL, "feed-url", "", "URL of the shop's product feed")
	return cmd
}

func newShopListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List shops",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			shops, err := repo.ListShops(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(shops) == 0 {
				fmt.Fprintln(out, "No shops")
				return nil
			}
			rows := make([][]string, 0, len(shops))
			for _, s := range shops {
				rows = append(rows, []string{s.Name, s.ID.String(), s.FeedURL, humanize.Time(s.CreatedAt)})
			}
			fmt.Fprintln(out, renderTable([]string{"Name", "ID", "Feed URL", "Created"}, rows, nil))
			return nil
		},
	}
}
