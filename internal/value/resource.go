package value

// Resource is the KindResource payload: an integer key into the request's
// resource manager (internal/resource) plus a type tag for diagnostics
// and type-checking builtins (is_resource, get_resource_type). The
// resource manager owns the actual open handle (file descriptor, DB
// connection, etc.); Value only carries the lookup key so that value
// does not need to import internal/resource.
type Resource struct {
	Key  int
	Type string
}
