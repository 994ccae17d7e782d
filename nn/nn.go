// Copyright 2026 The Fathom Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/fathom-ml/fathom/internal/nn"
)

// Network is an ordered, fixed-shape stack of layers with its activation,
// cost, and temperature configuration.
type Network = nn.Network

// Config holds the mandatory network-wide choices for New.
type Config = nn.Config

// LayerSpec describes one stage of the stack; see Dense and Conv.
type LayerSpec = nn.LayerSpec

// ConvConfig describes a convolutional stage for Conv.
type ConvConfig = nn.ConvConfig

// Layer is the contract implemented by every layer kind.
type Layer = nn.Layer

// Activation selects one of the closed set of activation functions.
type Activation = nn.Activation

// The activation catalog.
const (
	Identity  = nn.Identity
	ReLU      = nn.ReLU
	Sigmoid   = nn.Sigmoid
	Tanh      = nn.Tanh
	LeakyReLU = nn.LeakyReLU
	Softmax   = nn.Softmax
)

// Cost selects one of the closed set of loss functions.
type Cost = nn.Cost

// The cost catalog.
const (
	MeanSquaredError = nn.MeanSquaredError
	CrossEntropy     = nn.CrossEntropy
)

// The error taxonomy; match with errors.Is.
var (
	ErrConfiguration     = nn.ErrConfiguration
	ErrDimensionMismatch = nn.ErrDimensionMismatch
	ErrNotFinite         = nn.ErrNotFinite
)

// New builds a network from the configuration and one LayerSpec per stage.
//
// Example:
//
//	net, err := nn.New(nn.Config{
//	    InputSize:        784,
//	    HiddenActivation: nn.ReLU,
//	    OutputActivation: nn.Softmax,
//	    Cost:             nn.CrossEntropy,
//	}, nn.Dense(128), nn.Dense(10))
func New(cfg Config, specs ...LayerSpec) (*Network, error) {
	return nn.New(cfg, specs...)
}

// Dense specifies a fully connected stage with the given output width.
func Dense(nodes int) LayerSpec {
	return nn.Dense(nodes)
}

// Conv specifies a convolutional stage.
//
// Example:
//
//	nn.Conv(nn.ConvConfig{
//	    InputWidth: 28, InputHeight: 28, Channels: 1,
//	    KernelWidth: 5, KernelHeight: 5, Kernels: 8,
//	    StrideWidth: 1, StrideHeight: 1,
//	})
func Conv(cfg ConvConfig) LayerSpec {
	return nn.Conv(cfg)
}

// SaveCheckpoint writes a complete snapshot of the network — parameters,
// gradient accumulators, and optimizer state — to path.
func SaveCheckpoint(n *Network, path string) error {
	return nn.SaveCheckpoint(n, path)
}

// LoadCheckpoint rebuilds a network from a snapshot written by
// SaveCheckpoint.
func LoadCheckpoint(path string) (*Network, error) {
	return nn.LoadCheckpoint(path)
}
