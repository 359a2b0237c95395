// Package gateway is the public API for embedding the retrieval-augmented
// chat proxy.
package gateway

import (
	"github.com/tjfontaine/rag-chat-proxy/internal/runtime"
)

// Gateway is the running proxy.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// New creates a new Gateway with the given options.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithConfigFile("config.yaml"),
//	)
//	if err != nil { ... }
//	err = gw.Start(ctx)
var New = runtime.New

var (
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile
	WithStore      = runtime.WithStore
	WithLogger     = runtime.WithLogger
	WithHTTPClient = runtime.WithHTTPClient
	WithCompleter  = runtime.WithCompleter
	WithListener   = runtime.WithListener
)
