package image

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Intel HEX record types.
const (
	recordData            = 0x00
	recordEOF             = 0x01
	recordExtendedSegment = 0x02
	recordStartSegment    = 0x03
	recordExtendedLinear  = 0x04
	recordStartLinear     = 0x05
)

const (
	// minimumRecordBytes is count + address + type + checksum
	minimumRecordBytes = 5

	// gapFill pads holes between records
	gapFill = 0xFF

	// maxIntelHexImageLength bounds the assembled image before validation
	maxIntelHexImageLength = 1 << 20
)

// Load reads an image from path. Files ending in .hex or .ihex, or starting
// with ':', are parsed as Intel HEX; anything else is taken as raw binary.
//
// Example:
//
//	img, err := image.Load("firmware.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d bytes at 0x%08X\n", img.Size(), img.Address)
func Load(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	var img *Image
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".hex" || ext == ".ihex" || bytes.HasPrefix(raw, []byte(":")):
		img, err = ParseIntelHex(bytes.NewReader(raw))
	default:
		img = ParseBinary(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// ParseBinary wraps raw bytes as an image.
func ParseBinary(raw []byte) *Image {
	data := make([]byte, len(raw))
	copy(data, raw)
	return &Image{Data: data, Format: FormatBinary}
}

// ParseIntelHex parses an Intel HEX stream into a contiguous image starting
// at the lowest data address. Gaps between records are filled with 0xFF,
// the value of erased flash.
//
// Record format after the ':':
//
//	[Count(1)][Address(2, big-endian)][Type(1)][Data(Count)][Checksum(1)]
func ParseIntelHex(r io.Reader) (*Image, error) {
	scanner := bufio.NewScanner(r)

	var (
		base    uint32
		start   uint32
		data    []byte
		started bool
		sawEOF  bool
		lineNum int
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines
		if line == "" {
			continue
		}
		if sawEOF {
			return nil, fmt.Errorf("line %d: record after end of file", lineNum)
		}

		rec, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		switch rec.kind {
		case recordData:
			addr := base + uint32(rec.address)
			if !started {
				start = addr
				started = true
			}
			if addr < start {
				return nil, fmt.Errorf("line %d: address 0x%08X below image start 0x%08X", lineNum, addr, start)
			}
			end := int(addr-start) + len(rec.data)
			if end > maxIntelHexImageLength {
				return nil, fmt.Errorf("line %d: image exceeds %d bytes", lineNum, maxIntelHexImageLength)
			}
			for len(data) < end {
				data = append(data, gapFill)
			}
			copy(data[addr-start:], rec.data)
		case recordEOF:
			sawEOF = true
		case recordExtendedSegment:
			if len(rec.data) != 2 {
				return nil, fmt.Errorf("line %d: extended segment record needs 2 bytes", lineNum)
			}
			base = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 4
		case recordExtendedLinear:
			if len(rec.data) != 2 {
				return nil, fmt.Errorf("line %d: extended linear record needs 2 bytes", lineNum)
			}
			base = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 16
		case recordStartSegment, recordStartLinear:
			// Entry points do not affect the image.
		default:
			return nil, fmt.Errorf("line %d: unknown record type 0x%02X", lineNum, rec.kind)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !sawEOF {
		return nil, fmt.Errorf("missing end of file record")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no data records found")
	}

	return &Image{Data: data, Address: start, Format: FormatIntelHex}, nil
}

type record struct {
	kind    byte
	address uint16
	data    []byte
}

// parseRecord decodes and checksums one Intel HEX line.
func parseRecord(line string) (*record, error) {
	if line[0] != ':' {
		return nil, fmt.Errorf("record must start with ':'")
	}

	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	if len(raw) < minimumRecordBytes {
		return nil, fmt.Errorf("record too short: got %d bytes, minimum is %d", len(raw), minimumRecordBytes)
	}

	count := int(raw[0])
	if len(raw) != count+minimumRecordBytes {
		return nil, fmt.Errorf("data length mismatch: got %d bytes, expected %d", len(raw), count+minimumRecordBytes)
	}

	checksum := raw[len(raw)-1]
	if calc := recordChecksum(raw[:len(raw)-1]); calc != checksum {
		return nil, fmt.Errorf("checksum mismatch: got 0x%02X, expected 0x%02X", checksum, calc)
	}

	return &record{
		kind:    raw[3],
		address: uint16(raw[1])<<8 | uint16(raw[2]),
		data:    raw[4 : 4+count],
	}, nil
}

// recordChecksum is the two's complement of the byte sum.
func recordChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1
}
