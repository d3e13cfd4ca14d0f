package state

// a bitmap representing a set of capabilities held by a connection
type Permission uint64

const (
	// PermDraw lets a participant mutate the shared document.
	PermDraw Permission = 1 << iota
)

var BuiltInPerms = map[string]Permission{
	"draw": PermDraw,
}

func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}
