package redis

import (
	"ridedispatch/internal/presence"
	"ridedispatch/internal/service"
)

// Ensure concrete types implement interfaces.
var (
	_ presence.Store       = (*PresenceStore)(nil)
	_ service.LeaseManager = (*LockStore)(nil)
)
