package main

import (
	"context"
	"fmt"
	"os"

	"giveaway-bot/internal/config"
	"giveaway-bot/internal/storage"
)

func main() {
	a := &app{open: openFromConfig}
	root := newRootCmd(a)
	err := root.ExecuteContext(context.Background())
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openFromConfig() (*storage.Store, error) {
	cfg, err := config.LoadForTool()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.DatabaseDriver, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
