package fieldbus

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/consus-energy/edge-controller/registermap"
)

// decode converts the raw big-endian register bytes for a descriptor into its physical floating point
// value, applying sign extension and scaling. This, together with encode, is the only place raw Modbus
// integers are converted to or from physical units - everything above the Field-Bus Driver deals
// exclusively in physical values.
func decode(d registermap.Descriptor, raw []byte) (float64, error) {
	wantLen := int(d.WordCount) * 2
	if len(raw) != wantLen {
		return 0, fmt.Errorf("register %q: expected %d bytes, got %d", d.Name, wantLen, len(raw))
	}

	var rawVal float64
	switch d.WordCount {
	case 1:
		u := binary.BigEndian.Uint16(raw)
		if d.Signed {
			rawVal = float64(int16(u))
		} else {
			rawVal = float64(u)
		}
	case 2:
		u := binary.BigEndian.Uint32(raw)
		if d.Signed {
			rawVal = float64(int32(u))
		} else {
			rawVal = float64(u)
		}
	default:
		return 0, fmt.Errorf("register %q: unsupported word count %d", d.Name, d.WordCount)
	}

	return rawVal / scaleOf(d), nil
}

// encode converts a physical floating point value into the raw big-endian register bytes for a
// descriptor, applying scaling and truncating to the descriptor's word width.
func encode(d registermap.Descriptor, physical float64) ([]byte, error) {
	rawVal := physical * scaleOf(d)
	rounded := math.Round(rawVal)

	buf := make([]byte, int(d.WordCount)*2)
	switch d.WordCount {
	case 1:
		if d.Signed {
			if rounded < math.MinInt16 || rounded > math.MaxInt16 {
				return nil, fmt.Errorf("register %q: value %v out of int16 range", d.Name, physical)
			}
			binary.BigEndian.PutUint16(buf, uint16(int16(rounded)))
		} else {
			if rounded < 0 || rounded > math.MaxUint16 {
				return nil, fmt.Errorf("register %q: value %v out of uint16 range", d.Name, physical)
			}
			binary.BigEndian.PutUint16(buf, uint16(rounded))
		}
	case 2:
		if d.Signed {
			if rounded < math.MinInt32 || rounded > math.MaxInt32 {
				return nil, fmt.Errorf("register %q: value %v out of int32 range", d.Name, physical)
			}
			binary.BigEndian.PutUint32(buf, uint32(int32(rounded)))
		} else {
			if rounded < 0 || rounded > math.MaxUint32 {
				return nil, fmt.Errorf("register %q: value %v out of uint32 range", d.Name, physical)
			}
			binary.BigEndian.PutUint32(buf, uint32(rounded))
		}
	default:
		return nil, fmt.Errorf("register %q: unsupported word count %d", d.Name, d.WordCount)
	}

	return buf, nil
}

func scaleOf(d registermap.Descriptor) float64 {
	if d.Scale == 0 {
		return 1
	}
	return d.Scale
}
