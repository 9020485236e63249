package protocol

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/sigurn/crc16"
)

// crcTable is CRC-16/XMODEM: polynomial 0x1021, initial value 0x0000,
// no reflection and no final XOR.
var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// FrameCRC computes the frame checksum over the big-endian length field
// followed by the payload. Both are taken unescaped.
func FrameCRC(payload []byte) uint16 {
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(payload)))

	crc := crc16.Init(crcTable)
	crc = crc16.Update(crc, length[:], crcTable)
	crc = crc16.Update(crc, payload, crcTable)
	return crc16.Complete(crc, crcTable)
}

// CRC16 computes CRC-16/XMODEM over raw bytes.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// DataCRC32 computes the IEEE CRC-32 carried in DataPacket.data_crc32.
func DataCRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// VerificationHash returns the digest reported in FlashResult: the IEEE
// CRC-32 of the data read back from flash, big-endian.
func VerificationHash(data []byte) [VerificationHashSize]byte {
	var h [VerificationHashSize]byte
	binary.BigEndian.PutUint32(h[:], crc32.ChecksumIEEE(data))
	return h
}
