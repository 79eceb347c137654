package empire

import "github.com/thelittleladyinc/empire-system/id"

// ID is the primary identifier type for all Empire entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
