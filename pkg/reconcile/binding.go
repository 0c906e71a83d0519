package reconcile

// Binding is the atomic unit that a Diff is computed over. Key orders bindings
// so that reports list them deterministically.
type Binding interface {
	comparable
	Key() string
}

// ACLEntry is a single "entity has role" grant on a bucket or on the bucket's
// default object ACL.
type ACLEntry struct {
	Entity string `yaml:"entity" json:"entity"`
	Role   string `yaml:"role" json:"role"`
}

// Key implements Binding.
func (e ACLEntry) Key() string {
	return e.Entity + "\x00" + e.Role
}

// IAMBinding is a single "member is granted role" pair from an IAM policy.
type IAMBinding struct {
	Role   string `yaml:"role" json:"role"`
	Member string `yaml:"member" json:"member"`
}

// Key implements Binding.
func (b IAMBinding) Key() string {
	return b.Role + "\x00" + b.Member
}
