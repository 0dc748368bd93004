// Package testutil provides migration fixtures and helpers shared by tests
package testutil

import "time"

const (
	// TestTimeout is the default timeout for test operations
	TestTimeout = 30 * time.Second

	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second

	// TestContext is a qualified DbContext name whose folder is "Shop"
	TestContext = "Shop.Data.ShopContext"

	// TestContextShort is the folder name derived from TestContext
	TestContextShort = "Shop"
)

// Timestamps used by the Init/AddAge/DropName scenario
const (
	TSInit     = "20230101000000"
	TSAddAge   = "20230102000000"
	TSDropName = "20230103000000"
)
