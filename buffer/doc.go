// Package buffer provides a reference-counted, pooled byte container used
// as the currency between pipeline handlers and transport I/O.
//
// A ByteBuf is a (storage, readerIndex, writerIndex) triple shared by
// refcount: slice, duplicate and retained variants share the underlying
// storage without affecting each other's indices. Capacity grows
// monotonically until release.
package buffer
