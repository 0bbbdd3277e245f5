// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package logging points the standard logger at stderr and, optionally, a
// size-rotated log file.
package logging

import (
	"io"
	"log"
	"os"

	"github.com/relabs-tech/flight_core/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the standard logger for cfg. The returned closer
// flushes and closes the log file; it is a no-op without LOG_FILE.
func Setup(cfg *config.Config) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.LogFile == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, file))
	log.Printf("logging: writing to %s (max %d MB, %d backups)", cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	return file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
