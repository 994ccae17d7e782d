// Copyright 2026 The Fathom Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/fathom-ml/fathom/internal/optim"
)

// Algorithm selects one of the four parameter-update rules.
type Algorithm = optim.Algorithm

// The algorithm catalog.
const (
	SGD      = optim.SGD
	Momentum = optim.Momentum
	RMSProp  = optim.RMSProp
	Adam     = optim.Adam
)

// Config holds the hyper-parameters shared by all four update rules.
type Config = optim.Config

// ErrUnsupportedAlgorithm reports an algorithm tag outside the closed set.
var ErrUnsupportedAlgorithm = optim.ErrUnsupportedAlgorithm
