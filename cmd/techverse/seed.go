package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"techverse/marketplace/internal/store"
)

func seedCmd() *cobra.Command {
	var file string

	c := &cobra.Command{
		Use:   "seed",
		Short: "Load catalog and account data from YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			data, err := loadSeed(file)
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := st.Seed(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories, %d brands, %d users, %d products\n",
				res.Categories, res.Brands, res.Users, res.Products)
			return nil
		},
	}

	c.Flags().StringVarP(&file, "file", "f", "", "Seed YAML file (defaults to the bundled catalog)")
	return c
}

func loadSeed(path string) (store.SeedData, error) {
	if path == "" {
		return store.DefaultSeed()
	}
	f, err := os.Open(path)
	if err != nil {
		return store.SeedData{}, errors.Wrap(err, "open seed file")
	}
	defer f.Close()
	return store.ParseSeed(f)
}
