package hive

import "github.com/taskhive/hive/id"

// ID is the primary identifier type for all hive entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
