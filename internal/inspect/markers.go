package inspect

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"
)

var pdfPrevEntry = regexp.MustCompile(`/Prev\s+\d+`)

// EarlierRevisions counts the trailers of a PDF that chain to a previous
// cross-reference section. Each one marks an incremental update whose
// replaced objects are still present in the file.
func EarlierRevisions(data []byte) int {
	return len(pdfPrevEntry.FindAllIndex(data, -1))
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// pngMetadata lists ancillary chunks that carry text or EXIF data.
func pngMetadata(data []byte) []Field {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil
	}
	var fields []Field
	pos := len(pngSignature)
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos:]))
		kind := string(data[pos+4 : pos+8])
		start := pos + 8
		end := start + length
		if end+4 > len(data) {
			break
		}
		switch kind {
		case "tEXt", "zTXt", "iTXt":
			key := data[start:end]
			if i := bytes.IndexByte(key, 0); i >= 0 {
				key = key[:i]
			}
			fields = append(fields, Field{Name: kind, Value: string(key)})
		case "eXIf":
			fields = append(fields, Field{Name: "eXIf", Value: "present"})
		case "tIME":
			fields = append(fields, Field{Name: "tIME", Value: "present"})
		case "IEND":
			return fields
		}
		pos = end + 4
	}
	return fields
}

// jpegMetadata lists APPn segments other than the plain JFIF header, plus
// comment segments.
func jpegMetadata(data []byte) []Field {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil
	}
	var fields []Field
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			break
		}
		marker := data[pos+1]
		// start of scan: entropy-coded data follows
		if marker == 0xDA || marker == 0xD9 {
			break
		}
		length := int(binary.BigEndian.Uint16(data[pos+2:]))
		start := pos + 4
		end := pos + 2 + length
		if length < 2 || end > len(data) {
			break
		}
		payload := data[start:end]
		switch {
		case marker == 0xE0 && bytes.HasPrefix(payload, []byte("JFIF\x00")):
		case marker == 0xE1 && bytes.HasPrefix(payload, []byte("Exif\x00")):
			fields = append(fields, Field{Name: "APP1", Value: "Exif"})
		case marker == 0xE1 && bytes.HasPrefix(payload, []byte("http://ns.adobe.com/xap/")):
			fields = append(fields, Field{Name: "APP1", Value: "XMP"})
		case marker == 0xED:
			fields = append(fields, Field{Name: "APP13", Value: "IPTC/Photoshop"})
		case marker == 0xFE:
			fields = append(fields, Field{Name: "COM", Value: string(payload)})
		case marker == 0xE2 || marker == 0xEE:
			// ICC profile and Adobe color transform
		case marker >= 0xE0 && marker <= 0xEF:
			fields = append(fields, Field{Name: appName(marker), Value: "present"})
		}
		pos = end
	}
	return fields
}

func appName(marker byte) string {
	return fmt.Sprintf("APP%d", marker-0xE0)
}
