// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap logger shared by every component.
//
// Components receive a *zap.Logger, call Named with their own name and log
// with typed fields. A nil logger is always replaced by zap.NewNop, so
// tests and library callers can pass nil.
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
package logging
