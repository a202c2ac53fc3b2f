// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"embed"
	"io"
	"net/url"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*
var schemaFiles embed.FS

func loadSchemaFile(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Path)
}

var registerLoaderOnce sync.Once

func compiledSchema() (*jsonschema.Schema, error) {
	registerLoaderOnce.Do(func() {
		jsonschema.Loaders["embedFS"] = loadSchemaFile
	})
	return jsonschema.Compile("embedFS://schema/config.schema.json")
}
