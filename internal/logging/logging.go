// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package logging wires the --verbosity flag and the dlog/logrus logger
// into the root context, following cmd/btrfs-rec/main.go's logLevelFlag +
// dlog.WrapLogrus pattern exactly (spec.md's ambient logging requirement;
// logging itself has no §4 analogue in spec.md).
package logging

import (
	"context"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// LevelFlag implements pflag.Value over logrus's level set, so --verbosity
// accepts "error"|"warn"|"info"|"debug"|"trace" (and logrus's other
// aliases) directly.
type LevelFlag struct {
	logrus.Level
}

var _ pflag.Value = (*LevelFlag)(nil)

func (lvl *LevelFlag) Type() string { return "loglevel" }

func (lvl *LevelFlag) Set(str string) error {
	var err error
	lvl.Level, err = logrus.ParseLevel(str)
	return err
}

// NewLevelFlag defaults to info, matching the teacher's default.
func NewLevelFlag() *LevelFlag {
	return &LevelFlag{Level: logrus.InfoLevel}
}

// WithLogger installs a fresh logrus logger at lvl into ctx, returning the
// derived context every component downstream should log through via dlog.
func WithLogger(ctx context.Context, lvl logrus.Level) context.Context {
	logger := logrus.New()
	logger.SetLevel(lvl)
	return dlog.WithLogger(ctx, dlog.WrapLogrus(logger))
}

// WithPass derives a pass-scoped logger (spec.md §2's named passes:
// "counting", "distribute", "chunkindex", "sample", "hierarchy"), so
// multi-worker log output is attributable to the pass that produced it.
func WithPass(ctx context.Context, pass string) context.Context {
	return dlog.WithField(ctx, "pass", pass)
}
