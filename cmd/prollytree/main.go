// Command prollytree is a small demonstration CLI over the prolly tree
// engine: save/load, insert, get, and scan against a container file on
// disk, with tuning loaded from an optional TOML config.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Ntropish/prolly-gunna-sub000/chunks"
	"github.com/Ntropish/prolly-gunna-sub000/prolly"
)

// fileConfig mirrors prolly.Config for TOML loading; a config file on
// disk overrides prolly.DefaultConfig() field by field.
type fileConfig struct {
	TargetFanout       int `toml:"target_fanout"`
	MinFanout          int `toml:"min_fanout"`
	CDCMinSize         int `toml:"cdc_min_size"`
	CDCAvgSize         int `toml:"cdc_avg_size"`
	CDCMaxSize         int `toml:"cdc_max_size"`
	MaxInlineValueSize int `toml:"max_inline_value_size"`
}

func loadConfig(path string) (prolly.Config, error) {
	cfg := prolly.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return prolly.Config{}, errors.Wrap(err, "prollytree: load config")
	}
	if fc.TargetFanout != 0 {
		cfg.TargetFanout = fc.TargetFanout
	}
	if fc.MinFanout != 0 {
		cfg.MinFanout = fc.MinFanout
	}
	if fc.CDCMinSize != 0 {
		cfg.CDCMinSize = fc.CDCMinSize
	}
	if fc.CDCAvgSize != 0 {
		cfg.CDCAvgSize = fc.CDCAvgSize
	}
	if fc.CDCMaxSize != 0 {
		cfg.CDCMaxSize = fc.CDCMaxSize
	}
	if fc.MaxInlineValueSize != 0 {
		cfg.MaxInlineValueSize = fc.MaxInlineValueSize
	}
	return cfg, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "prollytree:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: [PROLLYTREE_CONFIG=path] prollytree <get|put|scan> <container> [args...]")
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	defer log.Sync() //nolint:errcheck

	configPath := os.Getenv("PROLLYTREE_CONFIG")
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	cmd, args := args[0], args[1:]

	switch cmd {
	case "put":
		return runPut(ctx, log, cfg, args)
	case "get":
		return runGet(ctx, log, args)
	case "scan":
		return runScan(ctx, log, args)
	default:
		return errors.Errorf("unknown command %q", cmd)
	}
}

func runPut(ctx context.Context, log *zap.Logger, cfg prolly.Config, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: prollytree put <container> <key> <value>")
	}
	containerPath, key, value := args[0], args[1], args[2]

	store := chunks.NewMemoryStore()
	tr, desc, err := openOrCreate(ctx, store, containerPath, cfg, log)
	if err != nil {
		return err
	}

	if err := tr.Insert(ctx, []byte(key), []byte(value)); err != nil {
		return errors.Wrap(err, "insert")
	}
	log.Info("inserted", zap.String("key", key))

	blob, err := tr.Save(ctx, desc)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	return os.WriteFile(containerPath, blob, 0o644)
}

func runGet(ctx context.Context, log *zap.Logger, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: prollytree get <container> <key>")
	}
	containerPath, key := args[0], args[1]

	store := chunks.NewMemoryStore()
	tr, _, err := loadExisting(ctx, store, containerPath, log)
	if err != nil {
		return err
	}

	v, ok, err := tr.Get(ctx, []byte(key))
	if err != nil {
		return errors.Wrap(err, "get")
	}
	if !ok {
		return errors.Errorf("key %q not found", key)
	}
	fmt.Println(string(v))
	return nil
}

func runScan(ctx context.Context, log *zap.Logger, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: prollytree scan <container>")
	}
	containerPath := args[0]

	store := chunks.NewMemoryStore()
	tr, _, err := loadExisting(ctx, store, containerPath, log)
	if err != nil {
		return err
	}

	page, err := tr.Scan(ctx, prolly.DefaultScanOptions())
	if err != nil {
		return errors.Wrap(err, "scan")
	}
	for _, item := range page.Items {
		fmt.Printf("%s\t%s\n", item.Key, item.Value)
	}
	return nil
}

func openOrCreate(ctx context.Context, store *chunks.MemoryStore, path string, cfg prolly.Config, log *zap.Logger) (*prolly.Tree, string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		tr, err := prolly.New(store, cfg, log)
		return tr, "", err
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "read container")
	}
	return prolly.Load(ctx, store, data, log)
}

func loadExisting(ctx context.Context, store *chunks.MemoryStore, path string, log *zap.Logger) (*prolly.Tree, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "read container")
	}
	return prolly.Load(ctx, store, data, log)
}
