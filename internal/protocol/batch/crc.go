package batch

import "hash/crc32"

// crc32cTable is the Castagnoli CRC-32 polynomial table Kafka uses for
// record batches, computed with the standard library's hash/crc32 rather
// than a dedicated CRC32C package — the same choice franz-go's kmsg
// package makes for its own record batch CRCs.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// crc32c computes the CRC-32C checksum of b.
func crc32c(b []byte) uint32 {
	return crc32.Checksum(b, crc32cTable)
}
