package fam

// Magic identifies a well-formed manifest payload and Version is the format
// salt this package encodes/decodes. A mismatch on either is a parse error,
// never a panic (spec.md §4.B, §7).
const (
	Magic   uint32 = 0x46414D31 // "FAM1"
	Version uint16 = 1

	// MaxRecordLen bounds any single length-prefixed field (name, path,
	// salt) against a corrupt or hostile length prefix running past the
	// buffer — spec.md's oversize_record failure. Kept well under the
	// uint16 length prefix's range so a corrupted prefix is reliably
	// caught rather than merely bounded by the wire format's own width.
	MaxRecordLen = 4096

)
