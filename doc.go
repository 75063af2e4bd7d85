// Package ghostcore is a userspace micro-kernel runtime: a cooperative
// fiber scheduler, a demand-paged terabyte-scale virtual arena, and an
// offset-addressed slab allocator, wired together behind one Runtime.
//
// The Runtime ingests text documents, vectorizes and quantizes them on a
// dedicated analysis worker, and appends the fixed-size records to the
// arena's vector log. Document payloads travel through the slab heap, whose
// backing pages materialize lazily on first touch.
package ghostcore
