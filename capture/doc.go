// Package capture accumulates the text a guest writes to stdout and stderr.
//
// Every run gets one [Output] holding two independent [Stream] values.
// Writes are appended in the order they arrive and decoded as lenient
// UTF-8: malformed bytes become U+FFFD and never fail the write.
//
// # Split code points
//
// A guest may write a multi-byte character in two separate calls. With
// [DecodeStreaming] (the default) the incomplete prefix is held until the
// next write on the same stream, so the character survives. With
// [DecodePerWrite] each write is decoded alone and each half is replaced.
//
//	out := capture.New(capture.DecodeStreaming, 0)
//	out.Stdout.Write([]byte{0xe2, 0x82})
//	out.Stdout.Write([]byte{0xac})
//	stdout, _, _ := out.Finalize() // "€"
package capture
