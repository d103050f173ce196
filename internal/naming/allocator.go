package naming

// ExistsFunc reports whether a file name is already taken in the target
// directory. It abstracts the collision universe so the allocator stays a
// pure query over directory contents.
type ExistsFunc func(name string) bool

// Allocate returns a collision-free file name for desiredBase+ext in the
// directory described by exists. When stripExisting is set, one trailing
// `_N` layer is removed from desiredBase first, so re-copying an already
// suffixed file does not produce `name_1_1`.
//
// The unsuffixed candidate is tried first, then counters 1, 2, 3, ... until
// a free name is found. The search is unbounded: a directory pre-seeded with
// adversarial names can make it run long, which is accepted.
//
// Allocate has no side effects. The caller performs the actual create with
// the returned name; the window between allocation and create is closed by
// the copier's exclusive-create retry, not here.
func Allocate(desiredBase, ext string, exists ExistsFunc, stripExisting bool) string {
	if stripExisting {
		desiredBase, _ = Strip(desiredBase)
	}

	candidate := desiredBase + ext
	if !exists(candidate) {
		return candidate
	}
	for counter := 1; ; counter++ {
		candidate = Join(desiredBase, counter) + ext
		if !exists(candidate) {
			return candidate
		}
	}
}
