// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/datawire/dlib/dgroup"
	"github.com/spf13/cobra"

	"git.lukeshu.com/lastree/internal/convert"
	"git.lukeshu.com/lastree/internal/logging"
	"git.lukeshu.com/lastree/internal/metadata"
)

func main() {
	verbosity := logging.NewLevelFlag()

	var sourcesFlag []string
	var outdirFlag string
	var nameFlag string
	var methodFlag string
	var encodingFlag string
	var chunkMethodFlag string
	var attributesFlag []string
	var projectionFlag string
	var keepChunksFlag bool
	var noChunkingFlag bool
	var noIndexingFlag bool

	argparser := &cobra.Command{
		Use:           "lastree",
		Short:         "Convert LAS/LAZ point clouds into a streamable octree",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	argparser.PersistentFlags().Var(verbosity, "verbosity", "set the log verbosity")

	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert one or more LAS/LAZ files into octree.bin/hierarchy.bin/metadata.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := parseMethod(methodFlag)
			if err != nil {
				return err
			}
			encoding, err := parseEncoding(encodingFlag)
			if err != nil {
				return err
			}
			// --chunk-method currently only supports LASZIP (the
			// LAS/LAZ-native chunking this tool implements); it's accepted
			// so scripts written against the original tool's CLI still
			// parse, and rejected otherwise rather than silently ignored.
			if chunkMethodFlag != "" && !strings.EqualFold(chunkMethodFlag, "LASZIP") {
				return fmt.Errorf("lastree: unsupported --chunk-method %q (only LASZIP)", chunkMethodFlag)
			}
			if len(sourcesFlag) == 0 {
				return fmt.Errorf("lastree: --source is required")
			}
			if outdirFlag == "" {
				return fmt.Errorf("lastree: --outdir is required")
			}

			ctx := logging.WithLogger(cmd.Context(), verbosity.Level)
			grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
				EnableSignalHandling: true,
			})
			grp.Go("main", func(ctx context.Context) error {
				return convert.Run(ctx, convert.Options{
					Sources:    sourcesFlag,
					OutDir:     outdirFlag,
					Name:       nameFlag,
					Method:     method,
					Encoding:   encoding,
					Attributes: attributesFlag,
					Projection: projectionFlag,
					KeepChunks: keepChunksFlag,
					NoChunking: noChunkingFlag,
					NoIndexing: noIndexingFlag,
				})
			})
			return grp.Wait()
		},
	}
	convertCmd.Flags().StringSliceVar(&sourcesFlag, "source", nil, "input LAS/LAZ `path`(s), comma-separated")
	convertCmd.Flags().StringVar(&outdirFlag, "outdir", "", "output `directory`")
	convertCmd.Flags().StringVar(&nameFlag, "name", "", "point cloud display name")
	convertCmd.Flags().StringVar(&methodFlag, "method", "random", "sampler: random|poisson")
	convertCmd.Flags().StringVar(&encodingFlag, "encoding", "DEFAULT", "octree.bin encoding: DEFAULT|BROTLI|UNCOMPRESSED")
	convertCmd.Flags().StringVar(&chunkMethodFlag, "chunk-method", "LASZIP", "chunking method")
	convertCmd.Flags().StringSliceVar(&attributesFlag, "attributes", nil, "attribute `name`(s) to output, comma-separated (default: all present)")
	convertCmd.Flags().StringVar(&projectionFlag, "projection", "", "projection WKT or SRS `string`")
	convertCmd.Flags().BoolVar(&keepChunksFlag, "keep-chunks", false, "keep the intermediate per-chunk files after conversion")
	convertCmd.Flags().BoolVar(&noChunkingFlag, "no-chunking", false, "skip (re-)distributing points into chunks; reuse existing chunk files")
	convertCmd.Flags().BoolVar(&noIndexingFlag, "no-indexing", false, "stop after chunking, without building the octree index")
	if err := convertCmd.MarkFlagRequired("source"); err != nil {
		panic(err)
	}
	if err := convertCmd.MarkFlagRequired("outdir"); err != nil {
		panic(err)
	}
	argparser.AddCommand(convertCmd)

	if err := argparser.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "lastree: error: %v\n", err)
		os.Exit(1)
	}
}

func parseMethod(s string) (convert.Method, error) {
	switch strings.ToLower(s) {
	case "", "random":
		return convert.MethodRandom, nil
	case "poisson":
		return convert.MethodPoisson, nil
	default:
		return "", fmt.Errorf("lastree: unknown --method %q (want random|poisson)", s)
	}
}

func parseEncoding(s string) (metadata.Encoding, error) {
	switch strings.ToUpper(s) {
	case "", "DEFAULT":
		return metadata.EncodingDefault, nil
	case "BROTLI":
		return metadata.EncodingBrotli, nil
	case "UNCOMPRESSED":
		return metadata.EncodingUncompressed, nil
	default:
		return "", fmt.Errorf("lastree: unknown --encoding %q (want DEFAULT|BROTLI|UNCOMPRESSED)", s)
	}
}
