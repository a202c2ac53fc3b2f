// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"time"

	"github.com/llm-sentinel/sentinel/internal/slog"
)

type queryTimingKey struct{}

// sqlHooks satisfies sqlhooks.Hooks, logging every query at debug
// level with its elapsed duration.
type sqlHooks struct{}

func (sqlHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	return context.WithValue(ctx, queryTimingKey{}, time.Now()), nil
}

func (sqlHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(queryTimingKey{}).(time.Time); ok {
		slog.Debug("sql query", slog.String("query", query), slog.Duration("took", time.Since(begin)))
	}
	return ctx, nil
}
