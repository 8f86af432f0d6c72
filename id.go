package revshare

import "github.com/xraph/revshare/id"

// ID is the identifier type shared by pools, payees and events.
type ID = id.ID

// Prefix identifies the record kind encoded in an ID.
type Prefix = id.Prefix
