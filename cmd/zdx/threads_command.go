package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"zdx/common"
	"zdx/thread"
)

func NewThreadsCommand() *cli.Command {
	return &cli.Command{
		Name:  "threads",
		Usage: "List recent threads, most recently active first",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := common.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var threads []thread.Summary
			if cfg.ThreadCache.Enabled {
				cache := thread.NewCache(cfg.ThreadCache.Addr, 0)
				defer cache.Close()
				threads, err = cache.ListThreads(ctx)
			} else {
				threads, err = thread.ListThreads()
			}
			if err != nil {
				return fmt.Errorf("list threads: %w", err)
			}
			for _, t := range threads {
				fmt.Printf("%s  %-30s  %s\n", thread.ShortID(t.ID), t.DisplayTitle(), t.RootPath)
			}
			return nil
		},
	}
}

func NewShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a thread's transcript",
		ArgsUsage: "<thread-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				latest, err := thread.LatestThreadID()
				if err != nil {
					return fmt.Errorf("find latest thread: %w", err)
				}
				if latest == "" {
					return fmt.Errorf("no threads found")
				}
				id = latest
			}

			log_, err := thread.Open(id)
			if err != nil {
				return fmt.Errorf("open thread: %w", err)
			}
			events, err := log_.ReadEvents()
			if err != nil {
				return fmt.Errorf("read thread: %w", err)
			}
			fmt.Println(thread.FormatTranscript(events))
			return nil
		},
	}
}
