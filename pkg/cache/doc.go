// Package cache implements the lazily computed members that user type
// adapters expose, and the per process registry used to invalidate them.
//
// Every Member is registered with the Bucket of the process it was created
// for. The bucket clears its members in two scopes: StateScope is cleared
// after every action executed against the target, because any of them may
// have changed the memory of the target; MetadataScope is cleared, together
// with StateScope, when the type information of the target is reloaded.
package cache
