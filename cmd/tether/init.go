package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tether-go/tether/internal/config"
	"github.com/tether-go/tether/internal/errors"
)

func initCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default tether.json",
		Long: `Create tether.json with default settings in the current directory.

Refuses to overwrite an existing file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(name)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name (default: directory name)")

	return cmd
}

func runInit(name string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	path := filepath.Join(wd, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return errors.Newf(errors.CategoryCLI, "%s already exists", path)
	}

	cfg := config.New()
	if name != "" {
		cfg.Name = name
	} else {
		cfg.Name = filepath.Base(wd)
	}

	if err := cfg.Save(wd); err != nil {
		return err
	}
	success("created %s", config.FileName)
	info("run 'tether serve' to start the demo server")
	return nil
}
