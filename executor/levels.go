package executor

// LockLevel is the table-lock strength a statement requires, following
// PostgreSQL's lock hierarchy.
type LockLevel string

const (
	AccessShare          LockLevel = "ACCESS_SHARE"
	RowShare             LockLevel = "ROW_SHARE"
	RowExclusive         LockLevel = "ROW_EXCLUSIVE"
	ShareUpdateExclusive LockLevel = "SHARE_UPDATE_EXCLUSIVE"
	Share                LockLevel = "SHARE"
	Exclusive            LockLevel = "EXCLUSIVE"
	AccessExclusive      LockLevel = "ACCESS_EXCLUSIVE"
)

// conflictTable is the symmetric lock-compatibility matrix. An entry lists
// every level the key level cannot run alongside on the same resource.
var conflictTable = map[LockLevel][]LockLevel{
	AccessShare:          {Exclusive, AccessExclusive},
	RowShare:             {Exclusive, AccessExclusive},
	RowExclusive:         {Share, ShareUpdateExclusive, Exclusive, AccessExclusive},
	ShareUpdateExclusive: {RowExclusive, ShareUpdateExclusive, Share, Exclusive, AccessExclusive},
	Share:                {RowExclusive, ShareUpdateExclusive, Exclusive, AccessExclusive},
	Exclusive:            {AccessShare, RowShare, RowExclusive, ShareUpdateExclusive, Share, Exclusive, AccessExclusive},
	AccessExclusive:      {AccessShare, RowShare, RowExclusive, ShareUpdateExclusive, Share, Exclusive, AccessExclusive},
}

// Conflicts reports whether two lock levels are incompatible on the same
// resource.
func Conflicts(a, b LockLevel) bool {
	for _, c := range conflictTable[a] {
		if c == b {
			return true
		}
	}
	return false
}
