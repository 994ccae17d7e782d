// Copyright 2026 The Fathom Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim exposes the parameter-update rules used by Network.Learn.
//
// # Overview
//
// Four gradient-descent variants share one contract and differ in the
// persistent state they maintain:
//
//	SGD       x -= lr·g
//	Momentum  v = β₁·v + (1-β₁)·g;  x -= lr·v
//	RMSProp   s = β₂·s + (1-β₂)·g²; x -= lr·g/sqrt(s+ε)
//	Adam      both moments, bias-corrected by the layer's step counter
//
// Velocity state lives inside the layers and is allocated lazily the first
// time a variant that needs it is used, so plain SGD training carries no
// extra memory. Once allocated it persists for the lifetime of the network
// and is never reset.
//
// # Basic Usage
//
//	cfg := optim.Config{LR: 0.001}.WithDefaults() // Momentum 0.9, Beta 0.999, Eps 1e-8
//	err := net.Learn(optim.Adam, cfg, batchInputs, batchTargets)
package optim
