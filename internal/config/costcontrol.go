// Cost control configuration re-exports.
//
// DESIGN: Cost control config is defined in internal/costcontrol/types.go.
// This file re-exports the type for use by the main Config struct.
package config

import "github.com/tutorloop/resilience-gateway/internal/costcontrol"

// CostConfig is an alias for costcontrol.Config.
type CostConfig = costcontrol.Config
