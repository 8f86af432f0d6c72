package auth

import "encoding/binary"

// SignCodeV1 prefixes every signed message so signatures made for another
// purpose with the same key cannot be mistaken for revshare credentials.
var SignCodeV1 = []byte{0, 0xCA, 0xFE, 'r'}

// Intent names the exact operation a credential authorizes. The engine builds
// one for every call; a signature over one intent does not verify for any
// other pool, operation or argument list.
type Intent struct {
	PoolKey string   `json:"pool_key"`
	Op      string   `json:"op"`
	Args    []string `json:"args,omitempty"`
}

// SignBytes returns the canonical message a credential for intent signs:
// SignCodeV1, then the length-prefixed pool key, op and each argument, then
// the nonce and expiry as big-endian 64-bit integers.
func SignBytes(intent Intent, nonce uint64, expires int64) []byte {
	size := len(SignCodeV1) + 4*(3+len(intent.Args)) + len(intent.PoolKey) + len(intent.Op) + 16
	for _, a := range intent.Args {
		size += len(a)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, SignCodeV1...)
	buf = appendField(buf, intent.PoolKey)
	buf = appendField(buf, intent.Op)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(intent.Args))) //nolint:gosec // lengths fit in 32 bits
	for _, a := range intent.Args {
		buf = appendField(buf, a)
	}
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	buf = binary.BigEndian.AppendUint64(buf, uint64(expires)) //nolint:gosec // bit pattern only
	return buf
}

func appendField(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s))) //nolint:gosec // lengths fit in 32 bits
	return append(buf, s...)
}
