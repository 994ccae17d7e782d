// Copyright 2026 The Fathom Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn is the public API of the fathom neural-network training
// engine.
//
// # Overview
//
// A network is a linear stack of learnable layers built from a validated
// configuration. The engine drives forward evaluation, reverse-mode
// backpropagation through the stack, and concurrent mini-batch training:
// one worker per example accumulates gradients behind a join barrier, then
// the averaged gradient is applied under one of four update rules from the
// optim package.
//
// # Basic Usage
//
//	import (
//	    "github.com/fathom-ml/fathom/nn"
//	    "github.com/fathom-ml/fathom/optim"
//	)
//
//	func main() {
//	    net, err := nn.New(nn.Config{
//	        InputSize:        2,
//	        HiddenActivation: nn.LeakyReLU,
//	        OutputActivation: nn.Softmax,
//	        Cost:             nn.CrossEntropy,
//	    }, nn.Dense(40), nn.Dense(20), nn.Dense(3))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    cfg := optim.Config{LR: 0.001}.WithDefaults()
//	    for epoch := 0; epoch < epochs; epoch++ {
//	        if err := net.Learn(optim.Adam, cfg, batchInputs, batchTargets); err != nil {
//	            log.Fatal(err)
//	        }
//	    }
//
//	    probs, err := net.Forward([]float64{0.5, -1})
//	}
//
// # Layers
//
// Two layer kinds are provided: nn.Dense for fully connected stages and
// nn.Conv for convolutional stages with stride and optional
// size-preserving reflection padding. Consecutive stages must be
// shape-compatible; nn.New validates the whole chain up front.
//
// # Errors
//
// Failures wrap one of the exported sentinels — ErrConfiguration,
// ErrDimensionMismatch, ErrNotFinite — and can be classified with
// errors.Is. A failed batch applies no gradient at all.
package nn
